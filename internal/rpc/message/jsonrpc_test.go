package message

import (
	"encoding/json"
	"testing"
)

func TestID_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		id       *ID
		isString bool
		isNumber bool
		str      string
	}{
		{"string", StringID("req-7"), true, false, "req-7"},
		{"number", NumberID(42), false, true, "42"},
		{"nil", nil, false, false, "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.id != nil {
				if tt.id.IsString() != tt.isString {
					t.Errorf("IsString() = %v, want %v", tt.id.IsString(), tt.isString)
				}
				if tt.id.IsNumber() != tt.isNumber {
					t.Errorf("IsNumber() = %v, want %v", tt.id.IsNumber(), tt.isNumber)
				}
			}
			if tt.id.String() != tt.str {
				t.Errorf("String() = %q, want %q", tt.id.String(), tt.str)
			}
		})
	}
}

func TestID_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		id   *ID
		want string
	}{
		{"string", StringID("cli-1"), `"cli-1"`},
		{"number", NumberID(123), "123"},
		{"nil", nil, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.id)
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		isNumber bool
		str      string
	}{
		{"string", `"cli-9"`, false, false, "cli-9"},
		{"integer", `456`, false, true, "456"},
		{"integral float", `789.0`, false, true, "789"},
		{"array rejected", `[1,2,3]`, true, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.raw), &id)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}
			if id.IsNumber() != tt.isNumber {
				t.Errorf("IsNumber() = %v, want %v", id.IsNumber(), tt.isNumber)
			}
			if id.String() != tt.str {
				t.Errorf("String() = %q, want %q", id.String(), tt.str)
			}
		})
	}
}

func TestID_UnmarshalJSON_Null(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`null`), &id); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if id.value != nil {
		t.Error("null must unmarshal to a nil value")
	}
}

func TestRequest_IsNotification(t *testing.T) {
	if !(&Request{Method: "daemon.shutdown"}).IsNotification() {
		t.Error("nil ID must be a notification")
	}
	if (&Request{ID: NumberID(1), Method: "daemon.status"}).IsNotification() {
		t.Error("request with ID must not be a notification")
	}
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(StringID("cli-1"), "project.switch", map[string]string{"name": "web"})
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	if req.JSONRPC != Version {
		t.Errorf("JSONRPC = %s, want %s", req.JSONRPC, Version)
	}
	if req.Method != "project.switch" {
		t.Errorf("Method = %s, want project.switch", req.Method)
	}
	if req.Params == nil {
		t.Error("params must be marshaled")
	}

	noParams, err := NewRequest(NumberID(2), "project.list", nil)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	if noParams.Params != nil {
		t.Error("nil params must stay nil")
	}

	if _, err := NewRequest(StringID("1"), "project.switch", make(chan int)); err == nil {
		t.Error("unmarshalable params must error")
	}
}

func TestResponse_IsError(t *testing.T) {
	if (&Response{}).IsError() {
		t.Error("response without error must not report IsError")
	}
	if !(&Response{Error: NewError(InternalError, "boom")}).IsError() {
		t.Error("response with error must report IsError")
	}
}

func TestNewSuccessResponse(t *testing.T) {
	resp, err := NewSuccessResponse(StringID("cli-1"), map[string]int{"tracked_windows": 5})
	if err != nil {
		t.Fatalf("NewSuccessResponse error: %v", err)
	}
	if resp.JSONRPC != Version || resp.ID.String() != "cli-1" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Error != nil || resp.Result == nil {
		t.Errorf("want result, no error; got %+v", resp)
	}

	empty, err := NewSuccessResponse(NumberID(1), nil)
	if err != nil {
		t.Fatalf("NewSuccessResponse error: %v", err)
	}
	if empty.Result != nil {
		t.Error("nil result must stay nil")
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(StringID("1"), NewError(MethodNotFound, "no such method"))
	if resp.JSONRPC != Version {
		t.Errorf("JSONRPC = %s, want %s", resp.JSONRPC, Version)
	}
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("error = %+v, want MethodNotFound", resp.Error)
	}
}

func TestNewNotification(t *testing.T) {
	notif, err := NewNotification("window.hidden", map[string]interface{}{"project": "web", "count": 2})
	if err != nil {
		t.Fatalf("NewNotification error: %v", err)
	}
	if notif.JSONRPC != Version || notif.Method != "window.hidden" {
		t.Errorf("notification = %+v", notif)
	}
	if notif.Params == nil {
		t.Error("params must be marshaled")
	}

	bare, err := NewNotification("daemon.state", nil)
	if err != nil {
		t.Fatalf("NewNotification error: %v", err)
	}
	if bare.Params != nil {
		t.Error("nil params must stay nil")
	}
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","id":1,"method":"project.switch","params":{"name":"web"}}`))
	if err != nil {
		t.Fatalf("ParseRequest error: %v", err)
	}
	if req.Method != "project.switch" || req.ID.String() != "1" {
		t.Errorf("request = %+v", req)
	}

	notif, err := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"daemon.shutdown"}`))
	if err != nil {
		t.Fatalf("ParseRequest error: %v", err)
	}
	if !notif.IsNotification() {
		t.Error("request without ID must be a notification")
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"daemon.status"}`},
		{"missing method", `{"jsonrpc":"2.0","id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRequest([]byte(tt.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"result":{"state":"running"}}`))
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}
	if resp.IsError() {
		t.Error("expected success response")
	}

	errResp, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"Invalid Request"}}`))
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}
	if !errResp.IsError() || errResp.Error.Code != InvalidRequest {
		t.Errorf("error = %+v, want InvalidRequest", errResp.Error)
	}
}

func TestParseResponse_Invalid(t *testing.T) {
	if _, err := ParseResponse([]byte(`{invalid}`)); err == nil {
		t.Error("malformed JSON must error")
	}
	if _, err := ParseResponse([]byte(`{"jsonrpc":"1.0","id":1,"result":{}}`)); err == nil {
		t.Error("wrong version must error")
	}
}

func TestIsJSONRPC(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"daemon.status"}`, true},
		{"notification", `{"jsonrpc":"2.0","method":"window.hidden"}`, true},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, true},
		{"wrong version", `{"jsonrpc":"1.0","method":"daemon.status"}`, false},
		{"no jsonrpc field", `{"id":1,"method":"daemon.status"}`, false},
		{"too short", `{"jsonrpc":"2.0"}`, false},
		{"not an object", `["jsonrpc","2.0","daemon.status"]`, false},
		{"junk", `i3-ipc garbage on the control socket`, false},
		{"empty", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsJSONRPC([]byte(tt.data)); got != tt.want {
				t.Errorf("IsJSONRPC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	original, _ := NewRequest(StringID("cli-3"), "window.hide", map[string]string{"project": "web"})
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	parsed, err := ParseRequest(data)
	if err != nil {
		t.Fatalf("ParseRequest error: %v", err)
	}
	if parsed.Method != original.Method || parsed.ID.String() != original.ID.String() {
		t.Errorf("round trip: got %+v, want %+v", parsed, original)
	}
}

func TestResponse_RoundTrip(t *testing.T) {
	original, _ := NewSuccessResponse(NumberID(42), map[string]string{"active_project": "web"})
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	parsed, err := ParseResponse(data)
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}
	if parsed.ID.String() != original.ID.String() || parsed.IsError() {
		t.Errorf("round trip: got %+v", parsed)
	}
}
