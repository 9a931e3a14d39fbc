package chromedppage

import (
	"context"
	"fmt"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// cdpStub answers Runtime.evaluate the way Chrome does: by value only when
// asked, otherwise with an object reference.
type cdpStub struct {
	value  string
	params *runtime.EvaluateParams
}

func (s *cdpStub) Execute(_ context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	if method != runtime.CommandEvaluate {
		return fmt.Errorf("unexpected method %s", method)
	}
	s.params = params.(*runtime.EvaluateParams)
	out := res.(*runtime.EvaluateReturns)
	if s.params.ReturnByValue {
		out.Result = &runtime.RemoteObject{Type: runtime.TypeObject, Value: []byte(s.value)}
	} else {
		out.Result = &runtime.RemoteObject{Type: runtime.TypeObject, ObjectID: "1.2.3"}
	}
	return nil
}

func TestEvaluate_ObjectResultsComeBackByValue(t *testing.T) {
	t.Parallel()
	stub := &cdpStub{value: `{"html":"<p>hi</p>"}`}
	ctx := cdp.WithExecutor(context.Background(), stub)

	var obj *runtime.RemoteObject
	if err := evaluate("(options) => PercyDOM.serialize(options)", &obj).Do(ctx); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !stub.params.ReturnByValue || !stub.params.AwaitPromise {
		t.Errorf("params: returnByValue=%v awaitPromise=%v", stub.params.ReturnByValue, stub.params.AwaitPromise)
	}

	got, err := remoteValue(obj)
	if err != nil {
		t.Fatalf("remoteValue: %v", err)
	}
	if string(got) != stub.value {
		t.Errorf("got %s, want %s", got, stub.value)
	}
}

func TestRemoteValue(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		obj     *runtime.RemoteObject
		want    string
		wantErr bool
	}{
		{"nil", nil, "null", false},
		{"undefined", &runtime.RemoteObject{Type: runtime.TypeUndefined}, "null", false},
		{"null without value", &runtime.RemoteObject{Type: runtime.TypeObject, Subtype: runtime.SubtypeNull}, "null", false},
		{"string", &runtime.RemoteObject{Type: runtime.TypeString, Value: []byte(`"dom"`)}, `"dom"`, false},
		{"reference", &runtime.RemoteObject{Type: runtime.TypeObject, ObjectID: "1.2.3"}, "", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := remoteValue(tc.obj)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("remoteValue: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}
