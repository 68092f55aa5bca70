package pixel

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrAlreadyFired is returned when a daily pixel was already sent today.
const ErrAlreadyFired errors.Error = "pixel already fired today"

const (
	dailyKeyPrefix = "pixel.daily."
	dayLayout      = "2006-01-02"
)

// Suffixes name the two pixels sent by Daily.FireDailyAndCount.
type Suffixes struct {
	Daily string
	Count string
}

// Pixel name suffixes.
var (
	LegacySuffixes = Suffixes{Daily: "_d", Count: "_c"}
	ModernSuffixes = Suffixes{Daily: "_daily", Count: "_count"}
)

// Daily sends pixels at most once per calendar day.
type Daily struct {
	sender Sender
	store  KeyValueStore
	now    func() time.Time
}

// NewDaily creates a daily pixel sender remembering fire dates in store.
func NewDaily(sender Sender, store KeyValueStore) *Daily {
	return &Daily{sender: sender, store: store, now: time.Now}
}

// Fire sends name unless it was already sent today. Pixels carrying an
// error are tracked separately per error.
func (d *Daily) Fire(ctx context.Context, name string, pixelErr error, params map[string]string) error {
	key := dailyKeyPrefix + name
	if pixelErr != nil {
		key += "." + pixelErr.Error()
		params = copyParams(params, ParamError, pixelErr.Error())
	}

	fired, err := d.firedToday(key)
	if err != nil {
		return err
	}
	if fired {
		return ErrAlreadyFired
	}

	if err := d.store.Set(key, d.now().Format(dayLayout)); err != nil {
		return errors.Annotate(err, "saving fire date of %s: %w", name)
	}
	return d.sender.Fire(ctx, name, params)
}

// FireDailyAndCount sends name with the daily suffix at most once a day and
// name with the count suffix every time. The errors of the two sends are
// returned separately.
func (d *Daily) FireDailyAndCount(ctx context.Context, name string, suffixes Suffixes, pixelErr error, params map[string]string) (dailyErr, countErr error) {
	dailyErr = d.Fire(ctx, name+suffixes.Daily, pixelErr, params)

	countParams := params
	if pixelErr != nil {
		countParams = copyParams(params, ParamError, pixelErr.Error())
	}
	countErr = d.sender.Fire(ctx, name+suffixes.Count, countParams)

	return dailyErr, countErr
}

func (d *Daily) firedToday(key string) (bool, error) {
	last, ok, err := d.store.Get(key)
	if err != nil {
		return false, errors.Annotate(err, "reading fire date: %w")
	}
	return ok && last == d.now().Format(dayLayout), nil
}
