package gateway

import "testing"

func TestValidateInboundFrameAcceptsKnownTypes(t *testing.T) {
	cases := []string{
		`{"type":"start_run","session_id":"s1","initial_topic":"hello"}`,
		`{"type":"user_interrupt"}`,
		`{"type":"user_directed_message","content":"hi","target_agent":"researcher","trim_count":0}`,
		`{"type":"human_input_response","request_id":"r1","user_input":"yes"}`,
		`{"type":"terminate_request"}`,
		`{"type":"component_generation_request","analysis_prompt":"score risk"}`,
	}
	for _, raw := range cases {
		if err := validateInboundFrame([]byte(raw)); err != nil {
			t.Errorf("expected %s to validate, got %v", raw, err)
		}
	}
}

func TestValidateInboundFrameRejectsMissingRequiredFields(t *testing.T) {
	if err := validateInboundFrame([]byte(`{"type":"start_run"}`)); err == nil {
		t.Fatal("expected missing session_id to fail validation")
	}
	if err := validateInboundFrame([]byte(`{"type":"user_directed_message","content":"hi"}`)); err == nil {
		t.Fatal("expected missing target_agent to fail validation")
	}
}

func TestValidateInboundFrameRejectsUnknownType(t *testing.T) {
	if err := validateInboundFrame([]byte(`{"type":"not_a_real_frame"}`)); err == nil {
		t.Fatal("expected unknown frame type to be rejected")
	}
}

func TestValidateInboundFrameRejectsMissingType(t *testing.T) {
	if err := validateInboundFrame([]byte(`{"session_id":"s1"}`)); err == nil {
		t.Fatal("expected missing type to be rejected")
	}
}
