package quota

import (
	"time"

	"chalk/internal/usage/models"
)

// effectiveCounts returns the counts that govern decisions at now: the raw
// stored values, with stale windows reading as zero. A nil record reads as
// zero everywhere. Raw values stay untouched until the next write performs
// the physical reset.
func effectiveCounts(record *models.UsageRecord, now time.Time) (monthlyGenerations, monthlyDownloads, hourlyGenerations int) {
	if record == nil {
		return 0, 0, 0
	}
	if !record.MonthlyStale(now) {
		monthlyGenerations = record.MonthlyGenerationsUsed
		monthlyDownloads = record.MonthlyDownloadsUsed
	}
	if !record.HourlyStale(now) {
		hourlyGenerations = record.HourlyGenerationsUsed
	}
	return monthlyGenerations, monthlyDownloads, hourlyGenerations
}

// underCap reports whether one more action still fits.
func underCap(limit, used int) bool {
	return limit == models.Unlimited || used < limit
}

// remaining reports limit − used clamped at zero, or the sentinel for an
// unlimited cap. The wire contract stays a plain integer.
func remaining(limit, used int) int {
	if limit == models.Unlimited {
		return models.UnlimitedRemaining
	}
	if left := limit - used; left > 0 {
		return left
	}
	return 0
}

// nextMonthlyReset is the first instant of the next calendar month, UTC.
func nextMonthlyReset(now time.Time) time.Time {
	year, month, _ := now.UTC().Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
}

// nextHourlyReset is when the identity's hourly window reopens: one hour
// after the stored window start, or one hour from now when no window is
// running.
func nextHourlyReset(record *models.UsageRecord, now time.Time) time.Time {
	if record == nil || record.LastHourlyReset == nil || record.HourlyStale(now) {
		return now.Add(time.Hour)
	}
	return record.LastHourlyReset.Add(time.Hour)
}

// decide computes the quota verdict for a raw stored record (nil means no
// usage yet) under one tier's limits at a pinned instant. Pure: calling it
// any number of times mutates nothing.
func decide(record *models.UsageRecord, limits models.LimitSet, tier models.Tier, tracked models.TrackingMethod, now time.Time) *models.Decision {
	monthlyGen, monthlyDl, hourlyGen := effectiveCounts(record, now)

	canGenerate := underCap(limits.MonthlyGenerations, monthlyGen) && underCap(limits.HourlyGenerations, hourlyGen)
	canDownload := underCap(limits.MonthlyDownloads, monthlyDl)

	decision := &models.Decision{
		CanGenerate:     canGenerate,
		CanDownload:     canDownload,
		GenerationsLeft: remaining(limits.MonthlyGenerations, monthlyGen),
		DownloadsLeft:   remaining(limits.MonthlyDownloads, monthlyDl),
		HourlyUsed:      hourlyGen,
		HourlyLimit:     limits.HourlyGenerations,
		Tier:            tier,
		TrackedBy:       tracked,
	}

	if !canGenerate {
		// The monthly window wins the explanation when both caps are hit:
		// its reset is further away, so the retry-after stays accurate.
		if !underCap(limits.MonthlyGenerations, monthlyGen) {
			decision.GenerationDenial = &models.Denial{
				Window:  models.WindowMonthly,
				Cap:     limits.MonthlyGenerations,
				ResetAt: nextMonthlyReset(now),
			}
		} else {
			decision.GenerationDenial = &models.Denial{
				Window:  models.WindowHourly,
				Cap:     limits.HourlyGenerations,
				ResetAt: nextHourlyReset(record, now),
			}
		}
	}
	if !canDownload {
		decision.DownloadDenial = &models.Denial{
			Window:  models.WindowMonthly,
			Cap:     limits.MonthlyDownloads,
			ResetAt: nextMonthlyReset(now),
		}
	}
	return decision
}

// restrictedDecision is the posture when the usage row cannot be read and
// the tier could not be confirmed: free tier, nothing allowed, zero
// remaining. No window denial is attached because nothing was actually
// exhausted.
func restrictedDecision(limits models.LimitSet, tracked models.TrackingMethod) *models.Decision {
	return &models.Decision{
		CanGenerate: false,
		CanDownload: false,
		HourlyLimit: limits.HourlyGenerations,
		Tier:        models.TierFree,
		TrackedBy:   tracked,
	}
}

// zeroCapped reports whether a cap of zero blocks the action outright. The
// store's insert arm is unconditional, so a first write would land even at
// cap zero; the engine refuses before writing.
func zeroCapped(limits models.LimitSet, action models.Action) bool {
	if limits.MonthlyCap(action) == 0 {
		return true
	}
	return action == models.ActionGeneration && limits.HourlyGenerations == 0
}
