package domain

// 回调事件名。"unknow" 不是笔误，是历史线上契约，改了商户会解析失败
const (
	EventSessionPaid    = "session.paid"
	EventSessionSettled = "session.settled"
	EventUnknowPaid     = "unknow.paid"
	EventUnknowSettled  = "unknow.settled"
)

// Event 回调给商户的事件，body 就是 {event, params}
type Event struct {
	Event  string `json:"event"`
	Params []any  `json:"params"`
}

func SessionPaid(sessionID int64, account string, amount int64) Event {
	return Event{Event: EventSessionPaid, Params: []any{sessionID, account, amount}}
}

func SessionSettled(sessionID int64, account string, amount int64) Event {
	return Event{Event: EventSessionSettled, Params: []any{sessionID, account, amount}}
}

func UnknowPaid(account string, amount int64) Event {
	return Event{Event: EventUnknowPaid, Params: []any{account, amount}}
}

func UnknowSettled(account string, amount int64) Event {
	return Event{Event: EventUnknowSettled, Params: []any{account, amount}}
}
