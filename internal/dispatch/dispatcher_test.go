package dispatch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/windlant/kobold-mcp-server/internal/dispatch"
	"github.com/windlant/kobold-mcp-server/internal/kobold"
	"github.com/windlant/kobold-mcp-server/internal/memory"
	"github.com/windlant/kobold-mcp-server/internal/protocol"
	"github.com/windlant/kobold-mcp-server/internal/tools"
	"github.com/windlant/kobold-mcp-server/internal/tools/registry"
)

type captured struct {
	method string
	url    string
	body   []byte
}

// fakeKobold records every request and answers with the queued responses in order.
type fakeKobold struct {
	mu        sync.Mutex
	requests  []captured
	status    []int
	responses []string
}

func (f *fakeKobold) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	i := len(f.requests)
	f.requests = append(f.requests, captured{method: r.Method, url: r.URL.String(), body: b})
	status, resp := http.StatusOK, `{}`
	if i < len(f.status) {
		status = f.status[i]
	}
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp))
}

func (f *fakeKobold) calls() []captured {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]captured(nil), f.requests...)
}

func newDispatcher(t *testing.T, baseURL string, client *kobold.Client) (*dispatch.Dispatcher, *memory.Transcript) {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	if client == nil {
		client = kobold.NewClient(0)
	}
	tr := memory.NewTranscript()
	return dispatch.New(reg, client, tr, dispatch.Options{BaseURL: baseURL}), tr
}

func setup(t *testing.T, fake *fakeKobold) (*dispatch.Dispatcher, *memory.Transcript) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return newDispatcher(t, srv.URL, nil)
}

func TestInvoke_UnknownTool(t *testing.T) {
	fake := &fakeKobold{}
	d, _ := setup(t, fake)

	for _, name := range []string{"", "kobold_unknown", "generate", "KOBOLD_GENERATE"} {
		resp, err := d.Invoke(context.Background(), name, tools.ToolArguments{"prompt": "x"})
		require.Nil(t, resp)
		require.Equal(t, dispatch.KindUnknownTool, dispatch.KindOf(err), name)
		require.True(t, errors.Is(err, dispatch.ErrUnknownTool))
		require.False(t, errors.Is(err, dispatch.ErrUpstream))
	}
	require.Empty(t, fake.calls())
}

func TestInvoke_MissingRequiredFieldMakesNoCall(t *testing.T) {
	fake := &fakeKobold{}
	d, _ := setup(t, fake)

	for _, def := range tools.All() {
		if !def.HasBody() || len(def.InputSchema.Required) == 0 {
			continue
		}
		_, err := d.Invoke(context.Background(), def.Name, tools.ToolArguments{})
		require.True(t, errors.Is(err, dispatch.ErrInvalidArguments), def.Name)
		require.Contains(t, err.Error(), def.InputSchema.Required[0])
	}
	require.Empty(t, fake.calls())
}

func TestInvoke_GetToolsSkipValidationAndRepeat(t *testing.T) {
	fake := &fakeKobold{responses: []string{`{"value":4096}`, `{"value":4096}`}}
	d, _ := setup(t, fake)

	for i := 0; i < 2; i++ {
		resp, err := d.Invoke(context.Background(), "kobold_max_context_length", tools.ToolArguments{"whatever": 1})
		require.NoError(t, err)
		require.JSONEq(t, `{"value":4096}`, string(resp))
	}

	calls := fake.calls()
	require.Len(t, calls, 2)
	require.Equal(t, calls[0].url, calls[1].url)
	require.Equal(t, "/api/v1/config/max_context_length", calls[0].url)
	require.Equal(t, http.MethodGet, calls[0].method)
	require.Empty(t, calls[0].body)
}

func TestInvoke_PostForwardsPayloadWithoutAPIURL(t *testing.T) {
	fake := &fakeKobold{responses: []string{`{"results":[{"text":" there"}]}`}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	d, _ := newDispatcher(t, "http://unused.invalid", nil)

	resp, err := d.Invoke(context.Background(), "kobold_generate", tools.ToolArguments{
		"apiUrl":         srv.URL + "/",
		"prompt":         "hello",
		"max_length":     json.Number("16"),
		"dynatemp_range": 0.5,
	})
	require.NoError(t, err)
	require.Equal(t, " there", gjson.GetBytes(resp, "results.0.text").String())

	calls := fake.calls()
	require.Len(t, calls, 1)
	require.Equal(t, http.MethodPost, calls[0].method)
	require.Equal(t, "/api/v1/generate", calls[0].url)
	require.JSONEq(t, `{"prompt":"hello","max_length":16,"dynatemp_range":0.5}`, string(calls[0].body))
}

func TestInvoke_NonStringAPIURL(t *testing.T) {
	fake := &fakeKobold{}
	d, _ := setup(t, fake)

	_, err := d.Invoke(context.Background(), "kobold_version", tools.ToolArguments{"apiUrl": 5001})
	require.True(t, errors.Is(err, dispatch.ErrInvalidArguments))
	require.Empty(t, fake.calls())
}

type recordingTransport struct {
	urls []string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.urls = append(rt.urls, req.URL.String())
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(bytes.NewReader([]byte(`{"result":"ok"}`))),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestInvoke_DefaultBaseAddress(t *testing.T) {
	rt := &recordingTransport{}
	d, _ := newDispatcher(t, "", kobold.NewClientWithHTTP(&http.Client{Transport: rt}))

	for _, def := range tools.All() {
		_, err := d.Invoke(context.Background(), def.Name, validArgs(def.ID))
		require.NoError(t, err, def.Name)
		require.Equal(t, "http://localhost:5001"+def.Endpoint, rt.urls[len(rt.urls)-1])
	}
	require.Len(t, rt.urls, len(tools.All()))
}

// validArgs returns the smallest argument set each tool accepts.
func validArgs(id tools.ToolID) tools.ToolArguments {
	switch id {
	case tools.Generate, tools.TokenCount, tools.Txt2Img, tools.Complete:
		return tools.ToolArguments{"prompt": "p"}
	case tools.Detokenize:
		return tools.ToolArguments{"ids": []interface{}{1.0, 2.0}}
	case tools.Transcribe:
		return tools.ToolArguments{"audio_data": "UklGRg=="}
	case tools.WebSearch:
		return tools.ToolArguments{"q": "koboldcpp"}
	case tools.TTS:
		return tools.ToolArguments{"input": "hello"}
	case tools.MultiplayerSetStory:
		return tools.ToolArguments{"data": "story"}
	case tools.Img2Img:
		return tools.ToolArguments{"prompt": "p", "init_images": []interface{}{"aW1n"}}
	case tools.Interrogate:
		return tools.ToolArguments{"image": "aW1n"}
	case tools.Chat:
		return tools.ToolArguments{"messages": []interface{}{map[string]interface{}{"role": "user", "content": "hi"}}}
	}
	return tools.ToolArguments{}
}

func chatArgs(content string) tools.ToolArguments {
	return tools.ToolArguments{
		"messages": []interface{}{
			map[string]interface{}{"role": "user", "content": content},
		},
		"max_tokens": 64.0,
	}
}

func chatReply(content string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + content + `"}}]}`
}

func TestInvoke_ChatAccumulatesTranscript(t *testing.T) {
	fake := &fakeKobold{responses: []string{chatReply("hello"), chatReply("fine")}}
	d, tr := setup(t, fake)

	resp, err := d.Invoke(context.Background(), "kobold_chat", chatArgs("hi"))
	require.NoError(t, err)
	require.JSONEq(t, chatReply("hello"), string(resp))

	_, err = d.Invoke(context.Background(), "kobold_chat", chatArgs("how are you"))
	require.NoError(t, err)

	calls := fake.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "/v1/chat/completions", calls[1].url)
	require.JSONEq(t, `{
		"max_tokens": 64,
		"messages": [
			{"role":"user","content":"hi"},
			{"role":"assistant","content":"hello"},
			{"role":"user","content":"how are you"}
		]
	}`, string(calls[1].body))

	require.Equal(t, []protocol.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "how are you"},
		{Role: "assistant", Content: "fine"},
	}, tr.Snapshot())
}

func TestInvoke_ChatUpstreamFailureLeavesTranscript(t *testing.T) {
	fake := &fakeKobold{
		status:    []int{http.StatusOK, http.StatusInternalServerError},
		responses: []string{chatReply("hello"), `{"error":"boom"}`},
	}
	d, tr := setup(t, fake)

	_, err := d.Invoke(context.Background(), "kobold_chat", chatArgs("hi"))
	require.NoError(t, err)
	before := tr.Snapshot()

	resp, err := d.Invoke(context.Background(), "kobold_chat", chatArgs("again"))
	require.Nil(t, resp)
	require.True(t, errors.Is(err, dispatch.ErrUpstream))
	require.Contains(t, err.Error(), "500 Internal Server Error")
	require.Equal(t, before, tr.Snapshot())
}

func TestInvoke_ChatWithoutAssistantMessage(t *testing.T) {
	fake := &fakeKobold{responses: []string{`{"choices":[]}`}}
	d, tr := setup(t, fake)

	_, err := d.Invoke(context.Background(), "kobold_chat", chatArgs("hi"))
	require.NoError(t, err)
	require.Equal(t, []protocol.Message{{Role: "user", Content: "hi"}}, tr.Snapshot())
}

func TestInvoke_UpstreamFailureOnPlainTool(t *testing.T) {
	fake := &fakeKobold{status: []int{http.StatusNotFound}, responses: []string{`{"detail":"Not Found"}`}}
	d, _ := setup(t, fake)

	_, err := d.Invoke(context.Background(), "kobold_sd_models", nil)
	require.Equal(t, dispatch.KindUpstream, dispatch.KindOf(err))
	require.Contains(t, err.Error(), "404 Not Found")
	require.Len(t, fake.calls(), 1, "no retry")
}

func TestInvoke_NetworkFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	d, tr := newDispatcher(t, url, nil)

	_, err := d.Invoke(context.Background(), "kobold_chat", chatArgs("hi"))
	require.True(t, errors.Is(err, dispatch.ErrUpstream))
	require.Zero(t, tr.Len())
}

func TestList_MatchesCatalog(t *testing.T) {
	d, _ := newDispatcher(t, "", nil)
	require.Len(t, d.List(), len(tools.All()))
}

func TestInvoke_ChatKeepsPerMessageFields(t *testing.T) {
	fake := &fakeKobold{responses: []string{
		`{"choices":[{"message":{"role":"assistant","content":"hello","reasoning_content":"greeting"}}]}`,
		chatReply("fine"),
	}}
	d, tr := setup(t, fake)

	_, err := d.Invoke(context.Background(), "kobold_chat", tools.ToolArguments{
		"messages": []interface{}{
			map[string]interface{}{"role": protocol.RoleSystem, "content": "be brief"},
			map[string]interface{}{"role": "user", "content": "hi", "name": "alice"},
		},
	})
	require.NoError(t, err)

	_, err = d.Invoke(context.Background(), "kobold_chat", tools.ToolArguments{
		"messages": []interface{}{
			map[string]interface{}{"role": "user", "content": "how are you", "name": "bob", "priority": json.Number("2")},
		},
	})
	require.NoError(t, err)

	calls := fake.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "alice", gjson.GetBytes(calls[0].body, "messages.1.name").String())
	require.JSONEq(t, `[
		{"role":"system","content":"be brief"},
		{"role":"user","content":"hi","name":"alice"},
		{"role":"assistant","content":"hello","reasoning_content":"greeting"},
		{"role":"user","content":"how are you","name":"bob","priority":2}
	]`, gjson.GetBytes(calls[1].body, "messages").Raw)

	history := tr.Snapshot()
	require.Len(t, history, 5)
	require.Equal(t, protocol.RoleSystem, history[0].Role)
	require.Equal(t, map[string]interface{}{"name": "alice"}, history[1].Extra)
	require.Equal(t, map[string]interface{}{"reasoning_content": "greeting"}, history[2].Extra)
}

func TestInvoke_VerboseLogsEveryOutcome(t *testing.T) {
	fake := &fakeKobold{responses: []string{`{"value":4096}`}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	reg, err := registry.Default()
	require.NoError(t, err)
	var logs bytes.Buffer
	d := dispatch.New(reg, kobold.NewClient(0), memory.NewTranscript(), dispatch.Options{
		BaseURL: srv.URL,
		Logger:  log.New(&logs, "", 0),
		Verbose: true,
	})

	_, _ = d.Invoke(context.Background(), "kobold_nope", nil)
	_, _ = d.Invoke(context.Background(), "kobold_generate", tools.ToolArguments{})
	_, _ = d.Invoke(context.Background(), "kobold_version", tools.ToolArguments{"apiUrl": true})
	_, err = d.Invoke(context.Background(), "kobold_max_length", nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "kobold_nope - -")
	require.Contains(t, lines[0], "unknown tool: kobold_nope")
	require.Contains(t, lines[1], "POST "+srv.URL+"/api/v1/generate")
	require.Contains(t, lines[1], "prompt: required field is missing")
	require.Contains(t, lines[2], "kobold_version GET -")
	require.Contains(t, lines[2], "apiUrl: expected string")
	require.True(t, strings.HasSuffix(lines[3], ": ok"), lines[3])
}
