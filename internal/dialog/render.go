package dialog

import (
	"errors"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/glebk/weather-bot/internal/domain"
	"github.com/glebk/weather-bot/internal/weather"
)

const (
	pickerDays      = 5
	detailMaxPoints = 8
)

const welcomeText = `🌤️ Hi! I'm a weather bot.

What I can do:
🌡️ Current weather - weather in any city right now
📅 5-day forecast - detailed forecast for your location
📍 Location search - share your location
🔔 Notifications - weather updates every couple of hours
🌍 Compare cities - weather in two cities side by side
📊 Extended data - full weather report with air quality

Pick a function on the keyboard below!`

func currentText(c *weather.Current) string {
	return fmt.Sprintf(`🌤️ <b>Weather in %s</b>

🌡️ Temperature: %.1f°C (feels like %.1f°C)
💧 Humidity: %d%%
🌪️ Wind: %.1f m/s
🔽 Pressure: %d hPa
☁️ %s`,
		esc(c.Name), c.Main.Temp, c.Main.FeelsLike, c.Main.Humidity,
		c.Wind.Speed, c.Main.Pressure, esc(c.Description()))
}

// NotificationText renders the periodic weather update
func NotificationText(c *weather.Current) string {
	return "🔔 <b>Weather update</b>\n\n" + currentText(c)
}

func comparisonText(a, b *weather.Current) string {
	an, bn := esc(a.Name), esc(b.Name)
	return fmt.Sprintf(`🌍 <b>Weather comparison</b>

📍 <b>%[1]s</b> vs <b>%[2]s</b>

🌡️ Temperature:
   %[1]s: %.1[3]f°C
   %[2]s: %.1[4]f°C
   Difference: %.1[5]f°C

💧 Humidity:
   %[1]s: %[6]d%%
   %[2]s: %[7]d%%

🌪️ Wind:
   %[1]s: %.1[8]f m/s
   %[2]s: %.1[9]f m/s

☁️ Description:
   %[1]s: %[10]s
   %[2]s: %[11]s`,
		an, bn,
		a.Main.Temp, b.Main.Temp, math.Abs(a.Main.Temp-b.Main.Temp),
		a.Main.Humidity, b.Main.Humidity,
		a.Wind.Speed, b.Wind.Speed,
		esc(a.Description()), esc(b.Description()))
}

func dayPicker(days []weather.DayBucket, loc *time.Location) Reply {
	if len(days) > pickerDays {
		days = days[:pickerDays]
	}
	rows := make([][]Button, 0, len(days))
	for _, d := range days {
		day, err := time.ParseInLocation(weather.DateLayout, d.Date, loc)
		if err != nil {
			continue
		}
		rows = append(rows, []Button{{
			Label: fmt.Sprintf("%s | %.1f°C", day.Format("02.01 (Mon)"), d.MeanTemp()),
			Data:  actionDay + ":" + d.Date,
		}})
	}
	return Reply{
		Text: "📅 <b>5-day forecast</b>\n\nPick a day for details:",
		Menu: inline(rows...),
	}
}

func dayDetail(d weather.DayBucket, loc *time.Location) Reply {
	var b strings.Builder
	day, _ := time.ParseInLocation(weather.DateLayout, d.Date, loc)
	fmt.Fprintf(&b, "📅 <b>Forecast for %s</b>\n\n", day.Format("02.01.2006"))

	points := d.Points
	if len(points) > detailMaxPoints {
		points = points[:detailMaxPoints]
	}
	for _, p := range points {
		fmt.Fprintf(&b, "🕐 %s: %.1f°C, %s\n", p.Time().In(loc).Format("15:04"), p.Main.Temp, esc(p.Description()))
	}

	return Reply{
		Text: b.String(),
		Menu: inline([]Button{{Label: "◀️ Back", Data: dataForecastBack}}),
	}
}

func extendedText(name string, c *weather.Current, air *weather.Air, loc *time.Location) string {
	if name == "" {
		name = c.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, `📊 <b>Extended data: %s</b>

🌡️ Temperature: %.1f°C
🤚 Feels like: %.1f°C
💧 Humidity: %d%%
🔽 Pressure: %d hPa
🌪️ Wind: %.1f m/s
☁️ Cloudiness: %d%%
🌥️ %s`,
		esc(name), c.Main.Temp, c.Main.FeelsLike, c.Main.Humidity,
		c.Main.Pressure, c.Wind.Speed, c.Clouds.All, esc(c.Description()))

	if rise, set := c.Sunrise(), c.Sunset(); !rise.IsZero() && !set.IsZero() {
		fmt.Fprintf(&b, "\n\n🌅 Sunrise: %s\n🌇 Sunset: %s", rise.In(loc).Format("15:04"), set.In(loc).Format("15:04"))
	}

	if air != nil {
		b.WriteString("\n")
		b.WriteString(airText(weather.AnalyzeAir(air.Components)))
	}
	return b.String()
}

func airText(r weather.AirReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n🌬️ Air quality: %s\n", r.Overall)
	for _, reading := range r.Readings {
		fmt.Fprintf(&b, "  %s: %g μg/m³ [%s]\n", reading.Name, reading.Value, reading.Level)
	}
	if len(r.Others) > 0 {
		b.WriteString("\n📊 Other components:\n")
		for _, c := range r.Others {
			fmt.Fprintf(&b, "  %s: %g μg/m³\n", esc(c.Code), c.Value)
		}
	}
	if r.Warning != "" {
		fmt.Fprintf(&b, "\n⚠️ %s", r.Warning)
	}
	return strings.TrimRight(b.String(), "\n")
}

func notificationsView(enabled bool) Reply {
	if enabled {
		return Reply{
			Text: "🔔 Notifications are <b>on</b>\n\nYou receive weather updates periodically.",
			Menu: inline([]Button{{Label: "❌ Turn off", Data: dataNotifyOff}}),
		}
	}
	return Reply{
		Text: "🔕 Notifications are <b>off</b>\n\nTurn them on to receive weather updates.",
		Menu: inline([]Button{{Label: "✅ Turn on", Data: dataNotifyOn}}),
	}
}

// errorText renders err as a short caution notice. subject, when set,
// names what failed (a city in a comparison).
func errorText(err error, subject string) string {
	var msg string
	switch {
	case errors.Is(err, domain.ErrNotFound):
		msg = "City not found."
	case errors.Is(err, domain.ErrInvalidInput):
		msg = "Enter exactly two cities separated by a comma!"
	case errors.Is(err, domain.ErrPersistence):
		msg = "Could not save your settings, please try again."
	default:
		msg = "Weather service is unavailable right now, please try again later."
	}
	if subject != "" {
		return "⚠️ " + esc(subject) + ": " + msg
	}
	return "⚠️ " + msg
}

func errorLabel(err error) string {
	switch domain.Classify(err) {
	case domain.ErrNotFound:
		return "not_found"
	case domain.ErrInvalidInput:
		return "invalid_input"
	case domain.ErrPersistence:
		return "persistence"
	case domain.ErrMalformedResponse:
		return "malformed"
	default:
		return "unavailable"
	}
}

func esc(s string) string {
	return html.EscapeString(s)
}
