package room

import "github.com/gosuda/temsim/internal/sessionlog"

// Action kinds. They double as the session log action names.
const (
	ActionJoin            = sessionlog.ActionJoin
	ActionLeave           = sessionlog.ActionLeave
	ActionReady           = sessionlog.ActionReady
	ActionPropose         = sessionlog.ActionPropose
	ActionVerify          = sessionlog.ActionVerify
	ActionAnswerQuiz      = sessionlog.ActionQuiz
	ActionFlagGauge       = sessionlog.ActionFlag
	ActionSelectChecklist = sessionlog.ActionSelectChecklist
	ActionCompleteItem    = sessionlog.ActionCompleteItem
	ActionChat            = sessionlog.ActionChat
)

var replayable = map[string]bool{
	ActionJoin: true, ActionLeave: true, ActionReady: true, ActionPropose: true, ActionVerify: true,
	ActionAnswerQuiz: true, ActionFlagGauge: true, ActionSelectChecklist: true, ActionCompleteItem: true, ActionChat: true,
}

// Action is one operator input. Humans and automated providers send the same
// shape; Role and Name identify the sender.
type Action struct {
	Kind      string `json:"kind"`
	Role      Role   `json:"role"`
	Name      string `json:"name"`
	Automated bool   `json:"automated,omitempty"`

	Threat    string `json:"threat,omitempty"`
	Option    string `json:"option,omitempty"`
	Approve   bool   `json:"approve,omitempty"`
	Question  string `json:"question,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Gauge     string `json:"gauge,omitempty"`
	Checklist string `json:"checklist,omitempty"`
	Index     int    `json:"index,omitempty"`
	Text      string `json:"text,omitempty"`
}

func Join(role Role, id Identity) Action {
	return Action{Kind: ActionJoin, Role: role, Name: id.Name, Automated: id.Kind == Automated}
}

func Leave(role Role, name string) Action {
	return Action{Kind: ActionLeave, Role: role, Name: name}
}

func Ready(role Role, name string) Action {
	return Action{Kind: ActionReady, Role: role, Name: name}
}

func ProposeDecision(name, threat, option string) Action {
	return Action{Kind: ActionPropose, Role: Controlling, Name: name, Threat: threat, Option: option}
}

func VerifyDecision(name string, approve bool) Action {
	return Action{Kind: ActionVerify, Role: Monitoring, Name: name, Approve: approve}
}

func AnswerQuiz(name, question, answer string) Action {
	return Action{Kind: ActionAnswerQuiz, Role: Monitoring, Name: name, Question: question, Answer: answer}
}

func FlagGauge(role Role, name, gauge string) Action {
	return Action{Kind: ActionFlagGauge, Role: role, Name: name, Gauge: gauge}
}

func SelectChecklist(role Role, name, checklist string) Action {
	return Action{Kind: ActionSelectChecklist, Role: role, Name: name, Checklist: checklist}
}

func CompleteChecklistItem(role Role, name, checklist string, index int) Action {
	return Action{Kind: ActionCompleteItem, Role: role, Name: name, Checklist: checklist, Index: index}
}

func Chat(role Role, name, text string) Action {
	return Action{Kind: ActionChat, Role: role, Name: name, Text: text}
}

func (a Action) identity() Identity {
	kind := Human
	if a.Automated {
		kind = Automated
	}
	return Identity{Kind: kind, Name: a.Name}
}
