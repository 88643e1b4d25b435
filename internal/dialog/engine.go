package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glebk/weather-bot/internal/domain"
	"github.com/glebk/weather-bot/internal/observability"
	"github.com/glebk/weather-bot/internal/weather"
)

// Sessions is the part of the session store the engine uses
type Sessions interface {
	Get(ctx context.Context, userID int64) (*domain.Session, error)
	SetLocation(ctx context.Context, userID int64, location domain.Coordinate) error
	SetNotifications(ctx context.Context, userID int64, enabled bool) error
}

// Weather is the gateway the engine reads through
type Weather interface {
	Geocode(ctx context.Context, name string) (*weather.Place, error)
	CurrentByCity(ctx context.Context, name string) (*weather.Current, error)
	CurrentByCoordinate(ctx context.Context, loc domain.Coordinate) (*weather.Current, error)
	FiveDayForecast(ctx context.Context, loc domain.Coordinate) (*weather.Forecast, error)
	AirPollution(ctx context.Context, loc domain.Coordinate) (*weather.Air, error)
}

// Messenger delivers replies to users. In private chats the chat ID is the user ID.
type Messenger interface {
	Send(ctx context.Context, chatID int64, r Reply) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, r Reply) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Engine is the per-user conversation state machine. Events for one user
// must be delivered sequentially; different users may be handled concurrently.
// Handler errors are transport failures only: everything else is rendered
// to the user.
type Engine struct {
	sessions Sessions
	weather  Weather
	out      Messenger
	logger   *zap.Logger
	states   *stateTable
	loc      *time.Location
}

// Option configures an Engine
type Option func(*Engine)

// WithLocation sets the timezone used to bucket forecasts and print times
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithPendingTimeout expires pending states older than d
func WithPendingTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.states.ttl = d
	}
}

// WithClock overrides the clock used for pending-state expiry
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.states.now = now
	}
}

// NewEngine creates a new Engine
func NewEngine(sessions Sessions, w Weather, out Messenger, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		sessions: sessions,
		weather:  w,
		out:      out,
		logger:   logger,
		states:   newStateTable(0, time.Now),
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the user's current dialog state
func (e *Engine) State(userID int64) State {
	return e.states.get(userID)
}

// HandleStart registers the user and shows the main menu
func (e *Engine) HandleStart(ctx context.Context, userID int64) error {
	observability.DialogEventsTotal.WithLabelValues("start").Inc()
	e.states.set(userID, Idle)

	if _, err := e.sessions.Get(ctx, userID); err != nil {
		e.logger.Warn("failed to load session", zap.Int64("user_id", userID), zap.Error(err))
		if err := e.sendError(ctx, userID, err, ""); err != nil {
			return err
		}
	}
	return e.send(ctx, userID, Reply{Text: welcomeText, Menu: MainMenu()})
}

// HandleHelp repeats the feature list and drops any pending input
func (e *Engine) HandleHelp(ctx context.Context, userID int64) error {
	observability.DialogEventsTotal.WithLabelValues("help").Inc()
	e.states.set(userID, Idle)
	return e.send(ctx, userID, Reply{Text: welcomeText, Menu: MainMenu()})
}

// HandleMenu runs a main keyboard action. Any pending state is dropped first.
func (e *Engine) HandleMenu(ctx context.Context, userID int64, label string) error {
	observability.DialogEventsTotal.WithLabelValues("menu").Inc()
	if prev := e.states.take(userID); prev != Idle {
		e.logger.Debug("pending state cancelled by menu",
			zap.Int64("user_id", userID),
			zap.Stringer("state", prev))
	}

	switch label {
	case LabelCurrentWeather:
		e.states.set(userID, AwaitingCityForCurrentWeather)
		return e.send(ctx, userID, Reply{Text: "Enter a city name:"})

	case LabelForecast:
		return e.showForecast(ctx, userID)

	case LabelShareLocation:
		return e.send(ctx, userID, Reply{Text: "Tap the 📍 button to share your location.", Menu: MainMenu()})

	case LabelNotifications:
		session, err := e.sessions.Get(ctx, userID)
		if err != nil {
			return e.sendError(ctx, userID, err, "")
		}
		return e.send(ctx, userID, notificationsView(session.NotificationsEnabled))

	case LabelCompare:
		e.states.set(userID, AwaitingTwoCitiesForComparison)
		return e.send(ctx, userID, Reply{Text: "Enter two cities separated by a comma (e.g. Moscow, Paris):"})

	case LabelExtended:
		return e.send(ctx, userID, Reply{
			Text: "Choose how to search:",
			Menu: inline(
				[]Button{{Label: "📍 By location", Data: dataExtendedGeo}},
				[]Button{{Label: "🏙️ By city", Data: dataExtendedCity}},
			),
		})
	}

	return e.send(ctx, userID, Reply{Text: "Choose an option on the keyboard below.", Menu: MainMenu()})
}

// HandleText consumes free text. A pending state handles it exactly once and
// the user is back to Idle afterwards, whatever the outcome.
func (e *Engine) HandleText(ctx context.Context, userID int64, text string) error {
	observability.DialogEventsTotal.WithLabelValues("text").Inc()
	state := e.states.take(userID)
	text = strings.TrimSpace(text)

	switch state {
	case AwaitingCityForCurrentWeather:
		cur, err := e.weather.CurrentByCity(ctx, text)
		if err != nil {
			return e.sendError(ctx, userID, err, "")
		}
		return e.send(ctx, userID, Reply{Text: currentText(cur)})

	case AwaitingTwoCitiesForComparison:
		return e.compare(ctx, userID, text)

	case AwaitingCityForExtendedData:
		place, err := e.weather.Geocode(ctx, text)
		if err != nil {
			return e.sendError(ctx, userID, err, "")
		}
		return e.showExtended(ctx, userID, place.Coordinate(), place.Name)
	}

	return e.send(ctx, userID, Reply{Text: "Choose an option on the keyboard below.", Menu: MainMenu()})
}

// HandleLocation stores the shared location and replies with its weather.
// A failed save is reported but the weather is still sent.
func (e *Engine) HandleLocation(ctx context.Context, userID int64, loc domain.Coordinate) error {
	observability.DialogEventsTotal.WithLabelValues("location").Inc()
	e.states.set(userID, Idle)

	if err := e.sessions.SetLocation(ctx, userID, loc); err != nil {
		e.logger.Warn("failed to save location",
			zap.Int64("user_id", userID),
			zap.Error(err))
		if err := e.sendError(ctx, userID, err, ""); err != nil {
			return err
		}
	}

	cur, err := e.weather.CurrentByCoordinate(ctx, loc)
	if err != nil {
		return e.sendError(ctx, userID, err, "")
	}
	return e.send(ctx, userID, Reply{Text: currentText(cur)})
}

// HandleCallback handles inline button presses. Callbacks carry all the
// context they need and never change the dialog state, except "by city"
// which starts waiting for a city name.
func (e *Engine) HandleCallback(ctx context.Context, cb Callback) error {
	observability.DialogEventsTotal.WithLabelValues("callback").Inc()
	action, arg := parseCallback(cb.Data)

	switch {
	case action == actionDay:
		return e.showDay(ctx, cb, arg)

	case cb.Data == dataForecastBack:
		forecast, ok, err := e.callbackForecast(ctx, cb)
		if !ok {
			return err
		}
		if err := e.out.Edit(ctx, cb.Message, dayPicker(weather.BucketByDay(forecast, e.loc), e.loc)); err != nil {
			return fmt.Errorf("failed to edit message: %w", err)
		}
		return e.answer(ctx, cb, "", false)

	case cb.Data == dataExtendedGeo:
		session, err := e.sessions.Get(ctx, cb.UserID)
		if err != nil {
			return e.answer(ctx, cb, errorText(err, ""), true)
		}
		if !session.HasLocation() {
			return e.answer(ctx, cb, "📍 Share your location first!", true)
		}
		if err := e.answer(ctx, cb, "", false); err != nil {
			return err
		}
		return e.showExtended(ctx, cb.UserID, *session.Location, "")

	case cb.Data == dataExtendedCity:
		e.states.set(cb.UserID, AwaitingCityForExtendedData)
		if err := e.answer(ctx, cb, "", false); err != nil {
			return err
		}
		return e.send(ctx, cb.UserID, Reply{Text: "Enter a city name:"})

	case cb.Data == dataNotifyOn || cb.Data == dataNotifyOff:
		return e.toggleNotifications(ctx, cb, cb.Data == dataNotifyOn)
	}

	e.logger.Debug("unknown callback", zap.Int64("user_id", cb.UserID), zap.String("data", cb.Data))
	return e.answer(ctx, cb, "Unknown action", false)
}

func (e *Engine) showForecast(ctx context.Context, userID int64) error {
	session, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return e.sendError(ctx, userID, err, "")
	}
	if !session.HasLocation() {
		return e.send(ctx, userID, Reply{Text: "📍 Share your location first!", Menu: MainMenu()})
	}

	forecast, err := e.weather.FiveDayForecast(ctx, *session.Location)
	if err != nil {
		return e.sendError(ctx, userID, err, "")
	}
	return e.send(ctx, userID, dayPicker(weather.BucketByDay(forecast, e.loc), e.loc))
}

func (e *Engine) showDay(ctx context.Context, cb Callback, date string) error {
	forecast, ok, err := e.callbackForecast(ctx, cb)
	if !ok {
		return err
	}

	day, found := weather.FindDay(weather.BucketByDay(forecast, e.loc), date)
	if !found {
		return e.answer(ctx, cb, "⚠️ No data for this day", false)
	}
	if err := e.out.Edit(ctx, cb.Message, dayDetail(day, e.loc)); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return e.answer(ctx, cb, "", false)
}

// callbackForecast loads the forecast for the user's stored location. When
// ok is false the callback has already been answered with the reason.
func (e *Engine) callbackForecast(ctx context.Context, cb Callback) (*weather.Forecast, bool, error) {
	session, err := e.sessions.Get(ctx, cb.UserID)
	if err != nil {
		return nil, false, e.answer(ctx, cb, errorText(err, ""), true)
	}
	if !session.HasLocation() {
		return nil, false, e.answer(ctx, cb, "⚠️ Location not found", false)
	}

	forecast, err := e.weather.FiveDayForecast(ctx, *session.Location)
	if err != nil {
		e.countError(cb.UserID, err)
		return nil, false, e.answer(ctx, cb, errorText(err, ""), true)
	}
	return forecast, true, nil
}

func (e *Engine) compare(ctx context.Context, userID int64, text string) error {
	parts := strings.Split(text, ",")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return e.sendError(ctx, userID, fmt.Errorf("%w: %q", domain.ErrInvalidInput, text), "")
	}
	first, second := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	a, err := e.weather.CurrentByCity(ctx, first)
	if err != nil {
		return e.sendError(ctx, userID, err, first)
	}
	b, err := e.weather.CurrentByCity(ctx, second)
	if err != nil {
		return e.sendError(ctx, userID, err, second)
	}
	return e.send(ctx, userID, Reply{Text: comparisonText(a, b)})
}

// showExtended renders weather plus air quality. Air quality is optional:
// its failure only drops that section.
func (e *Engine) showExtended(ctx context.Context, userID int64, loc domain.Coordinate, name string) error {
	cur, err := e.weather.CurrentByCoordinate(ctx, loc)
	if err != nil {
		return e.sendError(ctx, userID, err, "")
	}

	air, err := e.weather.AirPollution(ctx, loc)
	if err != nil {
		e.logger.Warn("air pollution unavailable",
			zap.Int64("user_id", userID),
			zap.Stringer("location", loc),
			zap.Error(err))
		air = nil
	}
	return e.send(ctx, userID, Reply{Text: extendedText(name, cur, air, e.loc)})
}

func (e *Engine) toggleNotifications(ctx context.Context, cb Callback, enabled bool) error {
	if err := e.sessions.SetNotifications(ctx, cb.UserID, enabled); err != nil {
		e.logger.Warn("failed to save notification setting",
			zap.Int64("user_id", cb.UserID),
			zap.Bool("enabled", enabled),
			zap.Error(err))
		e.countError(cb.UserID, err)
		return e.answer(ctx, cb, errorText(err, ""), true)
	}

	text := "❌ Notifications disabled!"
	if enabled {
		text = "✅ Notifications enabled!"
	}
	if err := e.answer(ctx, cb, text, true); err != nil {
		return err
	}
	if err := e.out.Edit(ctx, cb.Message, notificationsView(enabled)); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, userID int64, r Reply) error {
	if _, err := e.out.Send(ctx, userID, r); err != nil {
		e.logger.Warn("failed to send message", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (e *Engine) sendError(ctx context.Context, userID int64, err error, subject string) error {
	e.countError(userID, err)
	return e.send(ctx, userID, Reply{Text: errorText(err, subject)})
}

func (e *Engine) answer(ctx context.Context, cb Callback, text string, alert bool) error {
	if err := e.out.AnswerCallback(ctx, cb.ID, text, alert); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

func (e *Engine) countError(userID int64, err error) {
	label := errorLabel(err)
	observability.DialogErrorsTotal.WithLabelValues(label).Inc()
	if !errors.Is(err, domain.ErrInvalidInput) && !errors.Is(err, domain.ErrNotFound) {
		e.logger.Info("dialog error shown to user",
			zap.Int64("user_id", userID),
			zap.String("kind", label),
			zap.Error(err))
	}
}
