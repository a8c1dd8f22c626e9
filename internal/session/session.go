package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"oasplay/internal/apierr"
	"oasplay/internal/httpclient"
	"oasplay/internal/model"
	"oasplay/internal/openapi"
)

// Notifier is the user-facing message surface.
type Notifier interface {
	Info(title, description string)
	Error(title, description string)
}

// LogNotifier sends notifications to a zerolog logger.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Info(title, description string) {
	n.Log.Info().Str("detail", description).Msg(title)
}

func (n LogNotifier) Error(title, description string) {
	n.Log.Error().Str("detail", description).Msg(title)
}

type Options struct {
	// Source names where document text comes from, for error messages.
	Source        string
	// BaseURL overrides the document's first server when set.
	BaseURL       string
	Executor      *httpclient.Executor
	Notifier      Notifier
	Logger        zerolog.Logger
	MaxConcurrent int
}

// Session owns the current State and serializes every change to it.
// Readers get whole snapshots; a snapshot never changes once returned.
type Session struct {
	mu    sync.Mutex
	state *State
	seq   uint64

	source        string
	baseURL       string
	exec          *httpclient.Executor
	notify        Notifier
	log           zerolog.Logger
	maxConcurrent int
}

func New(opts Options) *Session {
	s := &Session{
		state:         NewState(nil),
		source:        strings.TrimSpace(opts.Source),
		baseURL:       strings.TrimSpace(opts.BaseURL),
		exec:          opts.Executor,
		notify:        opts.Notifier,
		log:           opts.Logger,
		maxConcurrent: opts.MaxConcurrent,
	}
	if s.exec == nil {
		s.exec = httpclient.NewExecutor(0, opts.Logger)
	}
	if s.notify == nil {
		s.notify = LogNotifier{Log: opts.Logger}
	}
	if s.maxConcurrent <= 0 {
		s.maxConcurrent = 4
	}
	return s
}

// State returns the current snapshot.
func (s *Session) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) apply(fn func(*State) *State) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state
}

// Load parses text and, on success, replaces the document and all
// per-operation state. Custom headers survive a reload. On failure the
// previous document stays loaded.
func (s *Session) Load(text []byte) error {
	doc, err := openapi.Parse(text)
	if err != nil {
		var perr *apierr.ParseError
		if errors.As(err, &perr) && perr.Source == "" {
			perr.Source = s.source
		}
		s.log.Debug().Err(err).Msg("spec parse failed")
		s.notify.Error("Failed to parse spec", err.Error())
		return err
	}
	for _, w := range doc.Warnings {
		s.log.Warn().Msg(w)
	}

	s.apply(func(cur *State) *State {
		next := NewState(doc)
		next.CustomHeaders = cur.CustomHeaders
		return next
	})
	s.notify.Info("Spec loaded", fmt.Sprintf("API: %s v%s", doc.Info.Title, doc.Info.Version))
	return nil
}

// BaseURL is the override if one was given, else the document's first server.
func (s *Session) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseURL != "" {
		return s.baseURL
	}
	return s.state.Doc.BaseURL()
}

// SetBaseURL replaces the base URL override; blank restores the document's.
func (s *Session) SetBaseURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimSpace(url)
}

func (s *Session) ToggleExpanded(key model.OperationKey) *State {
	return s.apply(func(cur *State) *State { return cur.ToggleExpanded(key) })
}

func (s *Session) SetParameterValue(key model.OperationKey, name, value string) *State {
	return s.apply(func(cur *State) *State { return cur.SetParameterValue(key, name, value) })
}

func (s *Session) ClearParameterValue(key model.OperationKey, name string) *State {
	return s.apply(func(cur *State) *State { return cur.ClearParameterValue(key, name) })
}

func (s *Session) SetRequestBody(key model.OperationKey, body any) *State {
	return s.apply(func(cur *State) *State { return cur.SetRequestBody(key, body) })
}

func (s *Session) SetCustomHeaders(text string) *State {
	return s.apply(func(cur *State) *State { return cur.SetCustomHeaders(text) })
}

// EditBody stores text as the request body when it is valid JSON. Invalid
// text is ignored so partial input does not clobber the last good body;
// blank text clears the body. It reports whether the state changed.
func (s *Session) EditBody(key model.OperationKey, text string) bool {
	if strings.TrimSpace(text) == "" {
		s.SetRequestBody(key, nil)
		return true
	}
	var body any
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return false
	}
	s.SetRequestBody(key, body)
	return true
}

// ParseHeaders decodes the custom-header text: a JSON object whose values
// are sent as header values. Blank text means no headers.
func ParseHeaders(text string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(text) == "" {
		return out, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &apierr.HeaderParseError{Message: "custom headers must be a JSON object", Cause: err}
	}
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	return out, nil
}

// Request assembles the outbound request for key from the given snapshot.
func (s *Session) Request(st *State, key model.OperationKey) (httpclient.Request, error) {
	req, _, err := s.request(st, key)
	return req, err
}

// request is Request plus the path placeholders that stayed unfilled.
func (s *Session) request(st *State, key model.OperationKey) (httpclient.Request, []string, error) {
	op, ok := st.Doc.Operation(key)
	if !ok {
		return httpclient.Request{}, nil, fmt.Errorf("unknown operation %s", key)
	}
	custom, err := ParseHeaders(st.CustomHeaders)
	if err != nil {
		return httpclient.Request{}, nil, err
	}

	opState := st.Op(key)
	var body any
	if opState.HasBody {
		body = opState.Body
	}
	built := httpclient.Build(key.Path, op, opState.Params, body)
	return httpclient.Request{
		BaseURL: s.BaseURL(),
		Path:    built.Path,
		Method:  key.Method,
		Body:    built.Body,
		Headers: mergeHeaders(built.Headers, custom),
	}, built.Unfilled, nil
}

// mergeHeaders returns base overridden by over. Names compare
// case-insensitively and the overriding spelling is kept.
func mergeHeaders(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		for existing := range out {
			if strings.EqualFold(existing, k) {
				delete(out, existing)
			}
		}
		out[k] = v
	}
	return out
}

// Execute sends the request for key and records the result. When the same
// operation is executed again before an earlier call returns, only the most
// recently submitted call's result is stored. The returned error is only
// set when no request was sent; state is left untouched in that case.
func (s *Session) Execute(ctx context.Context, key model.OperationKey) (httpclient.ExecutionResult, error) {
	req, unfilled, err := s.request(s.State(), key)
	if err != nil {
		var hpe *apierr.HeaderParseError
		if errors.As(err, &hpe) {
			s.notify.Error("Invalid custom headers", hpe.Error())
		} else {
			s.notify.Error("Cannot execute", err.Error())
		}
		return nil, err
	}
	if len(unfilled) > 0 {
		s.log.Warn().Str("operation", key.String()).Strs("placeholders", unfilled).Msg("path parameters left unfilled")
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.state = s.state.SetLoading(key, true, seq)
	s.mu.Unlock()

	res := s.exec.Execute(ctx, req)
	if !s.finish(key, seq, res) {
		s.log.Debug().Str("operation", key.String()).Uint64("seq", seq).Msg("discarding superseded result")
		return res, nil
	}

	switch r := res.(type) {
	case httpclient.Success:
		s.notify.Info("Request completed", fmt.Sprintf("%s → %d %s", key, r.Status, r.StatusText))
	case httpclient.Failure:
		s.notify.Error("Request failed", r.Message)
	}
	return res, nil
}

// finish stores res and clears the in-flight flag if seq is still the latest
// submission for key. It reports whether it did.
func (s *Session) finish(key model.OperationKey, seq uint64, res httpclient.ExecutionResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Op(key).Seq != seq {
		return false
	}
	if res != nil {
		s.state = s.state.SetResult(key, res)
	}
	s.state = s.state.SetLoading(key, false, seq)
	return true
}

// ExecuteAll runs several operations concurrently, at most MaxConcurrent at
// a time. One operation failing to send does not affect the others: the
// results map holds every request that was sent, and the error joins the
// per-operation errors of those that were not.
func (s *Session) ExecuteAll(ctx context.Context, keys []model.OperationKey) (map[model.OperationKey]httpclient.ExecutionResult, error) {
	var (
		mu      sync.Mutex
		results = make(map[model.OperationKey]httpclient.ExecutionResult, len(keys))
		errs    = make([]error, len(keys))
	)

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for i, key := range keys {
		g.Go(func() error {
			res, err := s.Execute(ctx, key)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", key, err)
				return nil
			}
			mu.Lock()
			results[key] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}
