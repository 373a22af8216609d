// Package sessionlog writes the structured per-session training log and reads
// it back for replay and debriefs.
package sessionlog

import (
	"encoding/json"
	"time"
)

// Action names written by the room engine.
const (
	ActionSessionCreated    = "session_created"
	ActionScenarioSelected  = "scenario_selected"
	ActionJoin              = "join"
	ActionLeave             = "user_left"
	ActionReady             = "ready"
	ActionPhaseChanged      = "phase_changed"
	ActionPropose           = "propose_decision"
	ActionVerify            = "verify_decision"
	ActionQuiz              = "answer_quiz"
	ActionFlag              = "flag_gauge"
	ActionSelectChecklist   = "select_checklist"
	ActionCompleteItem      = "complete_checklist_item"
	ActionChat              = "chat"
	ActionPrecursorStarted  = "precursor_started"
	ActionPrecursorDetected = "precursor_detected"
	ActionEventAlert        = "event_alert"
	ActionAlertReaction     = "alert_reaction"
	ActionEventEnded        = "event_ended"
	ActionEventDeferred     = "event_deferred"
	ActionChecklistComplete = "checklist_complete"
	ActionMissionComplete   = "mission_complete"
	ActionRoomEmpty         = "room_empty"
	ActionClockResync       = "clock_resync"
	ActionRejected          = "rejected"
	ActionRejectedDuplicate = "rejected-duplicate"
	ActionRoomFault         = "room_fault"
)

// Record is one line of the session log.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Elapsed   float64         `json:"elapsed_time"`
	Room      string          `json:"room"`
	Session   string          `json:"session"`
	Tick      uint64          `json:"tick"`
	Seq       uint64          `json:"seq"`
	Role      string          `json:"role,omitempty"`
	Actor     string          `json:"username,omitempty"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	Phase     string          `json:"phase"`
	Score     int             `json:"score"`
}

// Detail marshals v into a Details payload. Marshal failures yield an empty
// payload; log records are best effort.
func Detail(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
