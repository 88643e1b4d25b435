package weather

import "time"

// DateLayout is the calendar-day key used by DayBucket and callback data
const DateLayout = "2006-01-02"

// DayBucket groups forecast points falling on one calendar day
type DayBucket struct {
	Date   string
	Points []ForecastPoint
}

// MeanTemp returns the average temperature over the bucket's points
func (d DayBucket) MeanTemp() float64 {
	if len(d.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range d.Points {
		sum += p.Main.Temp
	}
	return sum / float64(len(d.Points))
}

// BucketByDay groups the forecast by calendar date in loc, preserving the
// order in which dates first appear.
func BucketByDay(f *Forecast, loc *time.Location) []DayBucket {
	if f == nil {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	var buckets []DayBucket
	index := make(map[string]int)
	for _, p := range f.List {
		date := p.Time().In(loc).Format(DateLayout)
		i, ok := index[date]
		if !ok {
			i = len(buckets)
			index[date] = i
			buckets = append(buckets, DayBucket{Date: date})
		}
		buckets[i].Points = append(buckets[i].Points, p)
	}
	return buckets
}

// FindDay returns the bucket for date, if any
func FindDay(buckets []DayBucket, date string) (DayBucket, bool) {
	for _, b := range buckets {
		if b.Date == date {
			return b, true
		}
	}
	return DayBucket{}, false
}
