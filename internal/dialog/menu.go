package dialog

import "strings"

// Main keyboard labels
const (
	LabelCurrentWeather = "🌡️ Current weather"
	LabelForecast       = "📅 5-day forecast"
	LabelShareLocation  = "📍 Send location"
	LabelNotifications  = "🔔 Notifications"
	LabelCompare        = "🌍 Compare cities"
	LabelExtended       = "📊 Extended data"
)

// Callback actions. Payloads are "action:arg".
const (
	actionDay      = "day"
	actionForecast = "forecast"
	actionExtended = "ext"
	actionNotify   = "notif"

	dataForecastBack = actionForecast + ":back"
	dataExtendedGeo  = actionExtended + ":geo"
	dataExtendedCity = actionExtended + ":city"
	dataNotifyOn     = actionNotify + ":on"
	dataNotifyOff    = actionNotify + ":off"
)

// Button is one keyboard button. Data is set for inline buttons only.
type Button struct {
	Label           string
	Data            string
	RequestLocation bool
}

// Menu is a keyboard attached to a message. Inline menus live under the
// message; others replace the user's reply keyboard.
type Menu struct {
	Inline bool
	Rows   [][]Button
}

// Reply is an outgoing HTML message
type Reply struct {
	Text string
	Menu *Menu
}

// MessageRef identifies a sent message so it can be edited later
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Callback is an inline button press
type Callback struct {
	ID      string
	UserID  int64
	Data    string
	Message MessageRef
}

// IsMenuLabel reports whether text is one of the main keyboard labels
func IsMenuLabel(text string) bool {
	switch text {
	case LabelCurrentWeather, LabelForecast, LabelShareLocation,
		LabelNotifications, LabelCompare, LabelExtended:
		return true
	}
	return false
}

// MainMenu is the persistent reply keyboard
func MainMenu() *Menu {
	return &Menu{Rows: [][]Button{
		{{Label: LabelCurrentWeather}, {Label: LabelForecast}},
		{{Label: LabelShareLocation, RequestLocation: true}, {Label: LabelNotifications}},
		{{Label: LabelCompare}, {Label: LabelExtended}},
	}}
}

func inline(rows ...[]Button) *Menu {
	return &Menu{Inline: true, Rows: rows}
}

func parseCallback(data string) (action, arg string) {
	action, arg, _ = strings.Cut(data, ":")
	return action, arg
}
