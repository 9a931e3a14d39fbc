package percy_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/percy-chromedp/internal/testutil"
	"github.com/raysh454/percy-chromedp/percy"
)

func envInfo() []string {
	return []string{"chromedp/0.14.2", "go/" + strings.TrimPrefix(runtime.Version(), "go")}
}

func decodeBody(t *testing.T, call testutil.Call) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(call.Request.Body, &body))
	return body
}

func webAgent() *testutil.DummyWebClient {
	return testutil.NewDummyWebClient().
		On(http.MethodGet, agentAddr+"/percy/healthcheck", healthy("web")).
		On(http.MethodGet, agentAddr+"/percy/dom.js", testutil.Reply{Status: http.StatusOK, Body: "some_js_code"}).
		On(http.MethodPost, agentAddr+"/percy/snapshot",
			testutil.JSONReply(map[string]any{"success": true, "data": "snapshot_data"}))
}

// ─── Snapshot ──────────────────────────────────────────────────────────

func TestSnapshot_SubmitsDOMAndReturnsData(t *testing.T) {
	t.Parallel()
	wc := webAgent()
	c, _ := newTestClient(t, wc)
	page := &testutil.FakePage{
		PageURL: "http://example.com",
		Results: []json.RawMessage{
			json.RawMessage("null"),
			testutil.JSONString("dom_snapshot"),
			testutil.JSONString(`{"hashed_id": "session-id"}`),
		},
	}

	data, err := c.Snapshot(context.Background(), page, "snapshot_name", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"snapshot_data"`, string(data))

	posts := wc.CallsTo(http.MethodPost, agentAddr+"/percy/snapshot")
	require.Len(t, posts, 1)
	assert.Equal(t, "application/json", posts[0].Request.Headers.Get("Content-Type"))

	body := decodeBody(t, posts[0])
	assert.Equal(t, "snapshot_name", body["name"])
	assert.Equal(t, "http://example.com", body["url"])
	assert.Equal(t, "dom_snapshot", body["dom_snapshot"])
	assert.Equal(t, percy.ClientName+"/"+percy.Version, body["client_info"])
	assert.ElementsMatch(t, envInfo(), body["environment_info"])

	require.True(t, posts[0].HasDeadline)
	assert.WithinDuration(t, time.Now().Add(600*time.Second), posts[0].Deadline, 5*time.Second)

	require.Len(t, page.Evaluations, 2)
	assert.Equal(t, "some_js_code", page.Evaluations[0].Expression)
	assert.Empty(t, page.Evaluations[0].Args)
	assert.Contains(t, page.Evaluations[1].Expression, "PercyDOM.serialize")
	assert.Equal(t, []any{percy.Options{}}, page.Evaluations[1].Args)
}

func TestSnapshot_MergesOptionsWithoutOverridingReservedKeys(t *testing.T) {
	t.Parallel()
	wc := webAgent()
	c, _ := newTestClient(t, wc)
	page := &testutil.FakePage{
		PageURL: "http://example.com/pricing",
		Results: []json.RawMessage{json.RawMessage("null"), json.RawMessage(`{"html":"<html></html>"}`)},
	}
	opts := percy.Options{"widths": []int{375, 1280}, "minHeight": 1024, "name": "hijacked"}

	_, err := c.Snapshot(context.Background(), page, "pricing", opts)
	require.NoError(t, err)

	body := decodeBody(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/snapshot")[0])
	assert.Equal(t, "pricing", body["name"])
	assert.Equal(t, []any{float64(375), float64(1280)}, body["widths"])
	assert.Equal(t, float64(1024), body["minHeight"])
	assert.Equal(t, []any{opts}, page.Evaluations[1].Args)
}

func TestSnapshot_AttachesCookiesToObjectDOM(t *testing.T) {
	t.Parallel()
	wc := webAgent()
	c, _ := newTestClient(t, wc)
	page := &testutil.FakePage{
		PageURL:   "http://example.com",
		Results:   []json.RawMessage{json.RawMessage("null"), json.RawMessage(`{"html":"<p>hi</p>"}`)},
		CookieJar: []percy.Cookie{{Name: "session", Value: "abc", Domain: "example.com", Path: "/"}},
	}

	_, err := c.Snapshot(context.Background(), page, "cookies", nil)
	require.NoError(t, err)

	body := decodeBody(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/snapshot")[0])
	dom, ok := body["dom_snapshot"].(map[string]any)
	require.True(t, ok, "dom_snapshot should stay an object")
	assert.Equal(t, "<p>hi</p>", dom["html"])
	cookies, ok := dom["cookies"].([]any)
	require.True(t, ok)
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].(map[string]any)["name"])
}

func TestSnapshot_CookieFailureStillSubmits(t *testing.T) {
	t.Parallel()
	wc := webAgent()
	c, _ := newTestClient(t, wc)
	page := &testutil.FakePage{
		PageURL:   "http://example.com",
		Results:   []json.RawMessage{json.RawMessage("null"), json.RawMessage(`{"html":"x"}`)},
		CookieErr: errors.New("target closed"),
	}

	data, err := c.Snapshot(context.Background(), page, "no-cookies", nil)
	require.NoError(t, err)
	assert.NotNil(t, data)

	body := decodeBody(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/snapshot")[0])
	assert.NotContains(t, body["dom_snapshot"], "cookies")
}

func TestSnapshot_DisabledSkipsEverything(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient().
		On(http.MethodGet, agentAddr+"/percy/healthcheck", testutil.Reply{Err: errors.New("connection refused")})
	c, _ := newTestClient(t, wc)
	page := &testutil.FakePage{PageURL: "http://example.com"}

	data, err := c.Snapshot(context.Background(), page, "home", nil)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Len(t, wc.Calls, 1, "only the healthcheck should be attempted")
	assert.Empty(t, page.Evaluations)
}

func TestSnapshot_AutomateAgentIsInvalidCall(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient().On(http.MethodGet, agentAddr+"/percy/healthcheck", healthy("automate"))
	c, _ := newTestClient(t, wc)
	page := &testutil.FakePage{}

	data, err := c.Snapshot(context.Background(), page, "home", nil)
	require.ErrorIs(t, err, percy.ErrInvalidSnapshotCall)
	assert.Contains(t, err.Error(), "Invalid function call")
	assert.Contains(t, err.Error(), "AutomateScreenshot()")
	assert.Nil(t, data)
	assert.Empty(t, wc.CallsTo(http.MethodGet, agentAddr+"/percy/dom.js"))
	assert.Empty(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/snapshot"))
	assert.Empty(t, page.Evaluations)
}

func TestSnapshot_DOMFetchFailureIsReturned(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient().
		On(http.MethodGet, agentAddr+"/percy/healthcheck", healthy("web")).
		On(http.MethodGet, agentAddr+"/percy/dom.js", testutil.Reply{Status: http.StatusNotFound})
	c, _ := newTestClient(t, wc)

	data, err := c.Snapshot(context.Background(), &testutil.FakePage{}, "home", nil)
	require.Error(t, err)
	assert.Nil(t, data)
	assert.Empty(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/snapshot"))
}

func TestSnapshot_SoftFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		post testutil.Reply
		page *testutil.FakePage
	}{
		"agent reports failure": {
			post: testutil.JSONReply(map[string]any{"success": false, "error": "invalid snapshot"}),
			page: &testutil.FakePage{PageURL: "http://example.com"},
		},
		"agent returns 500": {
			post: testutil.Reply{Status: http.StatusInternalServerError, Body: `{"success":true,"data":"x"}`},
			page: &testutil.FakePage{PageURL: "http://example.com"},
		},
		"post transport error": {
			post: testutil.Reply{Err: errors.New("EOF")},
			page: &testutil.FakePage{PageURL: "http://example.com"},
		},
		"page script error": {
			post: testutil.JSONReply(map[string]any{"success": true, "data": "x"}),
			page: &testutil.FakePage{EvaluateErr: errors.New("PercyDOM is not defined")},
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			wc := webAgent().On(http.MethodPost, agentAddr+"/percy/snapshot", tc.post)
			c, logger := newTestClient(t, wc)

			data, err := c.Snapshot(context.Background(), tc.page, "home", nil)
			assert.NoError(t, err)
			assert.Nil(t, data)
			assert.Equal(t, 1, logger.ErrorCount())
		})
	}
}

func TestSnapshot_SuccessWithoutDataIsNil(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"missing data": `{"success":true}`,
		"null data":    `{"success":true,"data":null}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			wc := webAgent().On(http.MethodPost, agentAddr+"/percy/snapshot",
				testutil.Reply{Status: http.StatusOK, Body: body})
			c, logger := newTestClient(t, wc)
			page := &testutil.FakePage{PageURL: "http://example.com"}

			data, err := c.Snapshot(context.Background(), page, "home", nil)
			require.NoError(t, err)
			assert.Nil(t, data)
			assert.Len(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/snapshot"), 1)
			assert.Zero(t, logger.ErrorCount())
		})
	}
}

func TestSnapshot_ValidatesArguments(t *testing.T) {
	t.Parallel()
	wc := webAgent()
	c, _ := newTestClient(t, wc)

	_, err := c.Snapshot(context.Background(), &testutil.FakePage{}, "  ", nil)
	assert.ErrorIs(t, err, percy.ErrEmptyName)

	_, err = c.Snapshot(context.Background(), nil, "home", nil)
	assert.ErrorIs(t, err, percy.ErrNilPage)
	assert.Empty(t, wc.Calls)
}

// ─── AutomateScreenshot ────────────────────────────────────────────────

func automatePage() *testutil.FakePage {
	return &testutil.FakePage{
		IDs:     percy.GUIDs{Page: "page@abc", Frame: "frame@abc", Browser: "browser@abc"},
		Results: []json.RawMessage{testutil.JSONString(`{"hashed_id": "session_id"}`)},
	}
}

func TestAutomateScreenshot_PostsIdentifiers(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient().
		On(http.MethodGet, agentAddr+"/percy/healthcheck", healthy("automate")).
		On(http.MethodPost, agentAddr+"/percy/automateScreenshot",
			testutil.JSONReply(map[string]any{"success": true, "data": "screenshot_data"}))
	c, _ := newTestClient(t, wc)
	page := automatePage()

	data, err := c.AutomateScreenshot(context.Background(), page, "screenshot_name", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"screenshot_data"`, string(data))

	posts := wc.CallsTo(http.MethodPost, agentAddr+"/percy/automateScreenshot")
	require.Len(t, posts, 1)

	want, err := json.Marshal(map[string]any{
		"client_info":      percy.ClientName + "/" + percy.Version,
		"environment_info": envInfo(),
		"sessionId":        "session_id",
		"pageGuid":         "page@abc",
		"frameGuid":        "frame@abc",
		"framework":        "playwright",
		"snapshotName":     "screenshot_name",
		"options":          map[string]any{},
	})
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(posts[0].Request.Body))

	require.True(t, posts[0].HasDeadline)
	assert.WithinDuration(t, time.Now().Add(600*time.Second), posts[0].Deadline, 5*time.Second)

	require.Len(t, page.Evaluations, 1)
	assert.Equal(t, "_ => {}", page.Evaluations[0].Expression)
	assert.Equal(t, []any{`browserstack_executor: {"action": "getSessionDetails"}`}, page.Evaluations[0].Args)
}

func TestAutomateScreenshot_AcceptsObjectSessionDetails(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient().
		On(http.MethodGet, agentAddr+"/percy/healthcheck", healthy("automate")).
		On(http.MethodPost, agentAddr+"/percy/automateScreenshot",
			testutil.JSONReply(map[string]any{"success": true, "data": map[string]any{"id": 7}}))
	c, _ := newTestClient(t, wc)
	page := automatePage()
	page.Results = []json.RawMessage{json.RawMessage(`{"hashed_id":"abc123"}`)}

	data, err := c.AutomateScreenshot(context.Background(), page, "checkout", percy.Options{"fullPage": true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, string(data))

	body := decodeBody(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/automateScreenshot")[0])
	assert.Equal(t, "abc123", body["sessionId"])
	assert.Equal(t, map[string]any{"fullPage": true}, body["options"])
}

func TestAutomateScreenshot_WebAgentIsInvalidCall(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient().On(http.MethodGet, agentAddr+"/percy/healthcheck", healthy("web"))
	c, _ := newTestClient(t, wc)
	page := automatePage()

	data, err := c.AutomateScreenshot(context.Background(), page, "screenshot_name", nil)
	require.Error(t, err)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, percy.ErrInvalidFunctionCall)
	assert.Contains(t, err.Error(), "Invalid function call")
	assert.Empty(t, page.Evaluations)
}

func TestAutomateScreenshot_DisabledReturnsNil(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient()
	c, _ := newTestClient(t, wc)

	data, err := c.AutomateScreenshot(context.Background(), automatePage(), "home", nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestAutomateScreenshot_SoftFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]*testutil.FakePage{
		"missing hashed_id": {
			IDs:     percy.GUIDs{Page: "p", Frame: "f", Browser: "b"},
			Results: []json.RawMessage{testutil.JSONString(`{}`)},
		},
		"garbage session details": {
			IDs:     percy.GUIDs{Page: "p", Frame: "f", Browser: "b"},
			Results: []json.RawMessage{testutil.JSONString(`not json`)},
		},
		"no guids": {
			Results: []json.RawMessage{testutil.JSONString(`{"hashed_id":"s"}`)},
		},
	}

	for name, page := range cases {
		page := page
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			wc := testutil.NewDummyWebClient().
				On(http.MethodGet, agentAddr+"/percy/healthcheck", healthy("automate")).
				On(http.MethodPost, agentAddr+"/percy/automateScreenshot",
					testutil.JSONReply(map[string]any{"success": true, "data": "x"}))
			c, logger := newTestClient(t, wc)

			data, err := c.AutomateScreenshot(context.Background(), page, "home", nil)
			assert.NoError(t, err)
			assert.Nil(t, data)
			assert.Equal(t, 1, logger.ErrorCount())
			assert.Empty(t, wc.CallsTo(http.MethodPost, agentAddr+"/percy/automateScreenshot"))
		})
	}
}
