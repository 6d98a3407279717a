package quota

import (
	"testing"
	"time"

	"chalk/internal/usage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)

func recordAt(monthlyGen, monthlyDl, hourlyGen int, monthlyReset, hourlyReset time.Time) *models.UsageRecord {
	return &models.UsageRecord{
		MonthlyGenerationsUsed: monthlyGen,
		MonthlyDownloadsUsed:   monthlyDl,
		HourlyGenerationsUsed:  hourlyGen,
		LastMonthlyReset:       &monthlyReset,
		LastHourlyReset:        &hourlyReset,
	}
}

func TestEffectiveCounts(t *testing.T) {
	t.Run("nil record reads zero", func(t *testing.T) {
		mg, md, hg := effectiveCounts(nil, testNow)
		assert.Zero(t, mg)
		assert.Zero(t, md)
		assert.Zero(t, hg)
	})

	t.Run("fresh windows read raw values", func(t *testing.T) {
		rec := recordAt(7, 3, 2, testNow.Add(-time.Hour), testNow.Add(-30*time.Minute))
		mg, md, hg := effectiveCounts(rec, testNow)
		assert.Equal(t, 7, mg)
		assert.Equal(t, 3, md)
		assert.Equal(t, 2, hg)
	})

	t.Run("stale month zeroes both monthly counters", func(t *testing.T) {
		february := time.Date(2025, time.February, 20, 10, 0, 0, 0, time.UTC)
		rec := recordAt(9999, 42, 2, february, testNow.Add(-30*time.Minute))
		mg, md, hg := effectiveCounts(rec, testNow)
		assert.Zero(t, mg)
		assert.Zero(t, md)
		assert.Equal(t, 2, hg, "hourly window is independent of the monthly one")
	})

	t.Run("stale hour zeroes only the hourly counter", func(t *testing.T) {
		rec := recordAt(7, 3, 5, testNow.Add(-time.Hour), testNow.Add(-2*time.Hour))
		mg, md, hg := effectiveCounts(rec, testNow)
		assert.Equal(t, 7, mg)
		assert.Equal(t, 3, md)
		assert.Zero(t, hg)
	})

	t.Run("raw values stay untouched", func(t *testing.T) {
		february := time.Date(2025, time.February, 20, 10, 0, 0, 0, time.UTC)
		rec := recordAt(9999, 42, 5, february, february)
		_, _, _ = effectiveCounts(rec, testNow)
		assert.Equal(t, 9999, rec.MonthlyGenerationsUsed)
		assert.Equal(t, 42, rec.MonthlyDownloadsUsed)
		assert.Equal(t, 5, rec.HourlyGenerationsUsed)
	})
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 3, remaining(10, 7))
	assert.Equal(t, 0, remaining(10, 10))
	assert.Equal(t, 0, remaining(10, 15), "clamped at zero, never negative")
	assert.Equal(t, models.UnlimitedRemaining, remaining(models.Unlimited, 123456))
}

func TestUnderCap(t *testing.T) {
	assert.True(t, underCap(10, 9))
	assert.False(t, underCap(10, 10))
	assert.False(t, underCap(0, 0))
	assert.True(t, underCap(models.Unlimited, 999999999))
}

func TestNextMonthlyReset(t *testing.T) {
	t.Run("mid month", func(t *testing.T) {
		got := nextMonthlyReset(testNow)
		assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("december wraps the year", func(t *testing.T) {
		got := nextMonthlyReset(time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC))
		assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("non UTC input normalizes", func(t *testing.T) {
		// 2025-03-31 21:00 at -05:00 is 2025-04-01 02:00 UTC.
		est := time.FixedZone("EST", -5*3600)
		got := nextMonthlyReset(time.Date(2025, time.March, 31, 21, 0, 0, 0, est))
		assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), got)
	})
}

func TestNextHourlyReset(t *testing.T) {
	t.Run("running window reopens an hour after its start", func(t *testing.T) {
		start := testNow.Add(-40 * time.Minute)
		rec := recordAt(1, 0, 1, testNow, start)
		assert.Equal(t, start.Add(time.Hour), nextHourlyReset(rec, testNow))
	})

	t.Run("no record means an hour from now", func(t *testing.T) {
		assert.Equal(t, testNow.Add(time.Hour), nextHourlyReset(nil, testNow))
	})

	t.Run("stale window means an hour from now", func(t *testing.T) {
		rec := recordAt(1, 0, 5, testNow, testNow.Add(-3*time.Hour))
		assert.Equal(t, testNow.Add(time.Hour), nextHourlyReset(rec, testNow))
	})

	t.Run("never started means an hour from now", func(t *testing.T) {
		rec := &models.UsageRecord{MonthlyGenerationsUsed: 1}
		assert.Equal(t, testNow.Add(time.Hour), nextHourlyReset(rec, testNow))
	})
}

func TestDecide(t *testing.T) {
	freeLimits := models.LimitSet{MonthlyGenerations: 10, MonthlyDownloads: 10, HourlyGenerations: 5}

	t.Run("fresh identity has full quota", func(t *testing.T) {
		d := decide(nil, freeLimits, models.TierFree, models.TrackedByIP, testNow)
		assert.True(t, d.CanGenerate)
		assert.True(t, d.CanDownload)
		assert.Equal(t, 10, d.GenerationsLeft)
		assert.Equal(t, 10, d.DownloadsLeft)
		assert.Zero(t, d.HourlyUsed)
		assert.Equal(t, 5, d.HourlyLimit)
		assert.Equal(t, models.TierFree, d.Tier)
		assert.Equal(t, models.TrackedByIP, d.TrackedBy)
		assert.Nil(t, d.GenerationDenial)
		assert.Nil(t, d.DownloadDenial)
	})

	t.Run("monthly generation cap denies with next month reset", func(t *testing.T) {
		rec := recordAt(10, 0, 2, testNow, testNow)
		d := decide(rec, freeLimits, models.TierFree, models.TrackedByUser, testNow)
		assert.False(t, d.CanGenerate)
		assert.Zero(t, d.GenerationsLeft)
		require.NotNil(t, d.GenerationDenial)
		assert.Equal(t, models.WindowMonthly, d.GenerationDenial.Window)
		assert.Equal(t, 10, d.GenerationDenial.Cap)
		assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), d.GenerationDenial.ResetAt)
		assert.True(t, d.CanDownload, "downloads are not affected by the generation cap")
	})

	t.Run("hourly cap denies even under an unlimited monthly cap", func(t *testing.T) {
		premium := models.LimitSet{MonthlyGenerations: models.Unlimited, MonthlyDownloads: models.Unlimited, HourlyGenerations: 15}
		windowStart := testNow.Add(-20 * time.Minute)
		rec := recordAt(400, 0, 15, testNow, windowStart)
		d := decide(rec, premium, models.TierPremium, models.TrackedByUser, testNow)
		assert.False(t, d.CanGenerate)
		assert.Equal(t, models.UnlimitedRemaining, d.GenerationsLeft, "monthly remaining reports the sentinel")
		require.NotNil(t, d.GenerationDenial)
		assert.Equal(t, models.WindowHourly, d.GenerationDenial.Window)
		assert.Equal(t, 15, d.GenerationDenial.Cap)
		assert.Equal(t, windowStart.Add(time.Hour), d.GenerationDenial.ResetAt)
	})

	t.Run("monthly wins the explanation when both caps are hit", func(t *testing.T) {
		rec := recordAt(10, 0, 5, testNow, testNow)
		d := decide(rec, freeLimits, models.TierFree, models.TrackedByUser, testNow)
		require.NotNil(t, d.GenerationDenial)
		assert.Equal(t, models.WindowMonthly, d.GenerationDenial.Window)
	})

	t.Run("download cap denies independently", func(t *testing.T) {
		rec := recordAt(0, 10, 0, testNow, testNow)
		d := decide(rec, freeLimits, models.TierFree, models.TrackedByIP, testNow)
		assert.True(t, d.CanGenerate)
		assert.False(t, d.CanDownload)
		require.NotNil(t, d.DownloadDenial)
		assert.Equal(t, models.WindowMonthly, d.DownloadDenial.Window)
		assert.Equal(t, 10, d.DownloadDenial.Cap)
	})

	t.Run("stale record reads as full quota", func(t *testing.T) {
		january := time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)
		rec := recordAt(9999, 9999, 9999, january, january)
		d := decide(rec, freeLimits, models.TierFree, models.TrackedByUser, testNow)
		assert.True(t, d.CanGenerate)
		assert.True(t, d.CanDownload)
		assert.Equal(t, 10, d.GenerationsLeft)
		assert.Equal(t, 10, d.DownloadsLeft)
		assert.Zero(t, d.HourlyUsed)
	})

	t.Run("zero cap denies a fresh identity", func(t *testing.T) {
		limits := models.LimitSet{MonthlyGenerations: 0, MonthlyDownloads: 10, HourlyGenerations: 5}
		d := decide(nil, limits, models.TierFree, models.TrackedByIP, testNow)
		assert.False(t, d.CanGenerate)
		require.NotNil(t, d.GenerationDenial)
		assert.Equal(t, models.WindowMonthly, d.GenerationDenial.Window)
		assert.Zero(t, d.GenerationDenial.Cap)
	})
}

func TestDecideAllowsAndDenialFor(t *testing.T) {
	freeLimits := models.LimitSet{MonthlyGenerations: 10, MonthlyDownloads: 0, HourlyGenerations: 5}
	d := decide(nil, freeLimits, models.TierFree, models.TrackedByIP, testNow)

	assert.True(t, d.Allows(models.ActionGeneration))
	assert.False(t, d.Allows(models.ActionDownload))
	assert.Nil(t, d.DenialFor(models.ActionGeneration))
	assert.NotNil(t, d.DenialFor(models.ActionDownload))
}

func TestRestrictedDecision(t *testing.T) {
	limits := models.LimitSet{MonthlyGenerations: 10, MonthlyDownloads: 10, HourlyGenerations: 5}
	d := restrictedDecision(limits, models.TrackedByUser)

	assert.False(t, d.CanGenerate)
	assert.False(t, d.CanDownload)
	assert.Zero(t, d.GenerationsLeft)
	assert.Zero(t, d.DownloadsLeft)
	assert.Equal(t, models.TierFree, d.Tier)
	assert.Nil(t, d.GenerationDenial, "nothing was exhausted, no window to blame")
	assert.Nil(t, d.DownloadDenial)
}

func TestZeroCapped(t *testing.T) {
	assert.True(t, zeroCapped(models.LimitSet{MonthlyGenerations: 0, MonthlyDownloads: 5, HourlyGenerations: 5}, models.ActionGeneration))
	assert.True(t, zeroCapped(models.LimitSet{MonthlyGenerations: 5, MonthlyDownloads: 0, HourlyGenerations: 5}, models.ActionDownload))
	assert.True(t, zeroCapped(models.LimitSet{MonthlyGenerations: 5, MonthlyDownloads: 5, HourlyGenerations: 0}, models.ActionGeneration))

	// A zero hourly cap does not block downloads.
	assert.False(t, zeroCapped(models.LimitSet{MonthlyGenerations: 5, MonthlyDownloads: 5, HourlyGenerations: 0}, models.ActionDownload))
	assert.False(t, zeroCapped(models.LimitSet{MonthlyGenerations: models.Unlimited, MonthlyDownloads: models.Unlimited, HourlyGenerations: models.Unlimited}, models.ActionGeneration))
}
