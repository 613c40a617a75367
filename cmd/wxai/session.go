package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/wxai"
	"github.com/blueberrycongee/wxai/internal/config"
	"github.com/blueberrycongee/wxai/pkg/cos"
	"github.com/blueberrycongee/wxai/pkg/types"
)

// extractionPollInterval is how often Extract checks job status.
var extractionPollInterval = 2 * time.Second

// session runs commands against one client. Generation defaults can be
// swapped while it runs.
type session struct {
	client   *wxai.Client
	logger   *slog.Logger
	out      io.Writer
	raw      bool
	watsonx  config.WatsonxConfig
	defaults atomic.Pointer[config.GenerationConfig]
}

func newSession(client *wxai.Client, cfg *config.Config, logger *slog.Logger, out io.Writer) *session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &session{
		client:  client,
		logger:  logger,
		out:     out,
		raw:     true,
		watsonx: cfg.Watsonx,
	}
	gen := cfg.Generation
	s.defaults.Store(&gen)
	return s
}

// Reload picks up new generation defaults. Endpoint and credential changes
// need a restart.
func (s *session) Reload(cfg *config.Config) {
	gen := cfg.Generation
	s.defaults.Store(&gen)
	if cfg.Watsonx != s.watsonx {
		s.logger.Warn("watsonx settings changed; restart to apply them")
	}
	s.logger.Info("generation defaults reloaded",
		"model_id", gen.ModelID,
		"chat_model_id", gen.ChatModelID,
		"deployment_id", gen.DeploymentID,
	)
}

// Generate streams the completion of prompt to the output.
func (s *session) Generate(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.New("generate needs a prompt")
	}
	gen := s.defaults.Load()
	req := textGenRequest(gen, prompt)

	if gen.DeploymentID != "" {
		stream, err := s.client.DeploymentGenerateTextStream(ctx, gen.DeploymentID, req)
		if err != nil {
			return err
		}
		_, err = printEvents(ctx, s.out, s.logger, stream, (*wxai.TextGenResponse).Text, !s.raw)
		return err
	}

	if s.raw {
		stream, err := s.client.GenerateTextRawStream(ctx, req)
		if err != nil {
			return err
		}
		return printRaw(ctx, s.out, stream)
	}

	stream, err := s.client.GenerateTextStream(ctx, req)
	if err != nil {
		return err
	}
	_, err = printEvents(ctx, s.out, s.logger, stream, (*wxai.TextGenResponse).Text, true)
	return err
}

// Chat streams the reply to a single message.
func (s *session) Chat(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("chat needs a message")
	}
	gen := s.defaults.Load()
	req := chatRequest(gen, []wxai.ChatMessage{wxai.TextMessage(wxai.RoleUser, message)})

	if s.raw && gen.DeploymentID == "" {
		stream, err := s.client.ChatRawStream(ctx, req)
		if err != nil {
			return err
		}
		return printRaw(ctx, s.out, stream)
	}
	_, err := s.chatTurn(ctx, gen, req)
	return err
}

// ChatREPL reads one message per line from in and streams each reply,
// keeping the conversation history. It returns when in is exhausted or ctx
// is done.
func (s *session) ChatREPL(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var history []wxai.ChatMessage
	for {
		fmt.Fprint(s.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = l
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		history = append(history, wxai.TextMessage(wxai.RoleUser, line))
		gen := s.defaults.Load()
		reply, err := s.chatTurn(ctx, gen, chatRequest(gen, history))
		if err != nil {
			return err
		}
		history = append(history, wxai.TextMessage(wxai.RoleAssistant, reply))
	}
}

func (s *session) chatTurn(ctx context.Context, gen *config.GenerationConfig, req *wxai.ChatRequest) (string, error) {
	var (
		stream *wxai.Stream[wxai.ChatStreamResponse]
		err    error
	)
	if gen.DeploymentID != "" {
		stream, err = s.client.DeploymentChatStream(ctx, gen.DeploymentID, req)
	} else {
		stream, err = s.client.ChatStream(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return printEvents(ctx, s.out, s.logger, stream, (*wxai.ChatStreamResponse).Delta, !s.raw)
}

// Models prints the foundation model listing, or a single model as JSON.
func (s *session) Models(ctx context.Context, modelID string) error {
	if modelID != "" {
		model, err := s.client.FoundationModelSpec(ctx, modelID)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(model, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.out, string(data))
		return err
	}

	models, err := s.client.ListFoundationModelSpecs(ctx, wxai.FoundationModelsQuery{Limit: 200})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPROVIDER\tMAX TOKENS\tFUNCTIONS")
	for _, m := range models.Resources {
		maxTokens := "-"
		if m.ModelLimits != nil && m.ModelLimits.MaxSequenceLength > 0 {
			maxTokens = fmt.Sprint(m.ModelLimits.MaxSequenceLength)
		}
		functions := make([]string, 0, len(m.Functions))
		for _, f := range m.Functions {
			functions = append(functions, f.ID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ModelID, m.Provider, maxTokens, strings.Join(functions, ","))
	}
	return tw.Flush()
}

// Extract uploads path to COS, runs a text extraction job on it and prints
// the extracted markdown.
func (s *session) Extract(ctx context.Context, cfg config.COSConfig, path string) error {
	if cfg.Bucket == "" || cfg.ConnectionID == "" {
		return errors.New("cos.bucket and cos.connection_id are required for extract")
	}
	store, err := cos.New(ctx, cfg.Client())
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := store.Key(filepath.Base(path))
	docRef, err := store.Stage(ctx, cfg.Bucket, key, cfg.ConnectionID, f)
	if err != nil {
		return fmt.Errorf("stage document: %w", err)
	}
	resultsKey := strings.TrimSuffix(key, filepath.Ext(key)) + ".md"

	job, err := s.client.CreateTextExtraction(ctx, &wxai.TextExtractionRequest{
		DocumentReference: docRef,
		ResultsReference:  cos.Reference(cfg.Bucket, resultsKey, cfg.ConnectionID),
		Parameters:        &types.TextExtractionParameters{RequestedOutputs: []string{"md"}},
	})
	if err != nil {
		return err
	}
	s.logger.Info("text extraction submitted", "id", job.Metadata.ID, "document", key)

	job, err = s.waitExtraction(ctx, job)
	if err != nil {
		return err
	}
	if job.Entity.Results.Status == types.ExtractionFailed {
		if fail := job.Entity.Results.Error; fail != nil {
			return fmt.Errorf("text extraction %s failed: %s: %s", job.Metadata.ID, fail.Code, fail.Message)
		}
		return fmt.Errorf("text extraction %s failed", job.Metadata.ID)
	}

	data, err := store.Download(ctx, cfg.Bucket, resultsKey)
	if err != nil {
		return fmt.Errorf("download results: %w", err)
	}
	_, err = s.out.Write(data)
	return err
}

func (s *session) waitExtraction(ctx context.Context, job *wxai.TextExtractionResource) (*wxai.TextExtractionResource, error) {
	ticker := time.NewTicker(extractionPollInterval)
	defer ticker.Stop()

	status := job.Entity.Results.Status
	for !job.Entity.Results.Done() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		next, err := s.client.GetTextExtraction(ctx, job.Metadata.ID)
		if err != nil {
			return nil, err
		}
		job = next
		if job.Entity.Results.Status != status {
			status = job.Entity.Results.Status
			s.logger.Info("text extraction progress", "id", job.Metadata.ID, "status", status,
				"pages", job.Entity.Results.NumberPagesProcessed)
		}
	}
	return job, nil
}

// printRaw writes each event's data on its own line.
func printRaw(ctx context.Context, w io.Writer, stream *wxai.TextStream) error {
	defer stream.Close()
	stop := context.AfterFunc(ctx, stream.Abort)
	defer stop()

	for data, err := range stream.All() {
		if err != nil {
			return err
		}
		fmt.Fprintln(w, data)
	}
	return nil
}

// printEvents writes the text of each event and returns the concatenated
// text. With withIDs every event goes on its own line prefixed by its id.
func printEvents[T any](ctx context.Context, w io.Writer, logger *slog.Logger, stream *wxai.Stream[T], text func(*T) string, withIDs bool) (string, error) {
	defer stream.Close()
	stop := context.AfterFunc(ctx, stream.Abort)
	defer stop()

	var sb strings.Builder
	for ev, err := range stream.All() {
		var decodeErr *wxai.DecodeError
		if errors.As(err, &decodeErr) {
			logger.Warn("skipping undecodable event", "error", err)
			continue
		}
		if err != nil {
			return sb.String(), err
		}

		chunk := text(&ev.Data)
		sb.WriteString(chunk)
		switch {
		case !withIDs:
			fmt.Fprint(w, chunk)
		case ev.HasID:
			fmt.Fprintf(w, "[%d] %s\n", ev.ID, chunk)
		default:
			fmt.Fprintf(w, "[-] %s\n", chunk)
		}
	}
	if !withIDs {
		fmt.Fprintln(w)
	}
	return sb.String(), nil
}

func textGenRequest(gen *config.GenerationConfig, prompt string) *wxai.TextGenRequest {
	params := &wxai.TextGenParameters{
		DecodingMethod: gen.DecodingMethod,
		MaxNewTokens:   gen.MaxNewTokens,
		MinNewTokens:   gen.MinNewTokens,
		TopK:           gen.TopK,
		StopSequences:  gen.StopSequences,
	}
	if gen.Temperature > 0 {
		params.Temperature = &gen.Temperature
	}
	if gen.TopP > 0 {
		params.TopP = &gen.TopP
	}

	req := &wxai.TextGenRequest{Input: prompt, Parameters: params}
	if gen.DeploymentID == "" {
		req.ModelID = gen.ModelID
	}
	return req
}

func chatRequest(gen *config.GenerationConfig, history []wxai.ChatMessage) *wxai.ChatRequest {
	messages := make([]wxai.ChatMessage, 0, len(history)+1)
	if gen.SystemPrompt != "" {
		messages = append(messages, wxai.TextMessage(wxai.RoleSystem, gen.SystemPrompt))
	}
	messages = append(messages, history...)

	req := &wxai.ChatRequest{
		Messages:  messages,
		MaxTokens: gen.MaxNewTokens,
		Stop:      gen.StopSequences,
	}
	if gen.Temperature > 0 {
		req.Temperature = &gen.Temperature
	}
	if gen.TopP > 0 {
		req.TopP = &gen.TopP
	}
	if gen.DeploymentID == "" {
		req.ModelID = gen.ChatModelID
	}
	return req
}
