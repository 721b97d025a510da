package types

type (
	WorkerMsg struct {
		// Propagated trace context, see otel.MessageCarrier
		TraceContext map[string]string `json:"trace_context,omitempty"`
		MsgType
		InstanceID string `json:"instance_id" validate:"uuid_rfc4122" format:"uuid"`
	}

	// Sent to the scoring worker with everything needed to score one test instance
	ScoringRequestMsg struct {
		WorkerMsg
		Questions []ScoringQuestion `json:"questions"`
		Answers   []ScoringAnswer   `json:"answers"`
	}

	// Sent back by the worker once it has claimed a request
	ScoringMsgStarted struct {
		WorkerMsg
	}

	ScoringMsgFinal struct {
		Result *ScoringOutput `json:"result,omitempty"`
		WorkerMsg
		// Verbatim model output, or the deterministic summary when no model call happened
		Raw string `json:"raw"`
		// Set when scoring failed
		Error string `json:"error,omitempty"`
	}

	MsgType string
)

const (
	MsgTypeScoringRequest = "scoring_request"
	MsgTypeScoringStarted = "scoring_started"
	MsgTypeScoringFinal   = "scoring_final"
)

const (
	ExitNormal  int = 0
	ExitErrored int = 1
)

func NewScoringRequestMsg(
	instanceID string,
	questions []ScoringQuestion,
	answers []ScoringAnswer,
) ScoringRequestMsg {
	return ScoringRequestMsg{
		WorkerMsg: WorkerMsg{
			MsgType:    MsgTypeScoringRequest,
			InstanceID: instanceID,
		},
		Questions: questions,
		Answers:   answers,
	}
}

func NewScoringMsgStarted(instanceID string) ScoringMsgStarted {
	return ScoringMsgStarted{
		WorkerMsg: WorkerMsg{
			MsgType:    MsgTypeScoringStarted,
			InstanceID: instanceID,
		},
	}
}

func NewScoringMsgFinal(
	instanceID string,
	result *ScoringOutput,
	raw string,
	scoringErr error,
) ScoringMsgFinal {
	msg := ScoringMsgFinal{
		WorkerMsg: WorkerMsg{
			MsgType:    MsgTypeScoringFinal,
			InstanceID: instanceID,
		},
		Result: result,
		Raw:    raw,
	}
	if scoringErr != nil {
		msg.Error = scoringErr.Error()
	}
	return msg
}
