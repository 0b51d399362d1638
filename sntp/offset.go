package sntp

import "github.com/tnicklin/sysclock/instant"

// ResolveEra places a raw server timestamp, which carries only an era
// offset, in the era nearest to own. Client and server are assumed to be
// within 68 years of each other, so an offset gap wider than that means
// one side has already rolled into the next era.
func ResolveEra(own instant.Instant, rawSecs, rawFrac uint32) instant.Instant {
	era := own.Era()
	diff := int64(own.EraOffset()) - int64(rawSecs)
	switch {
	case diff > instant.SecondsIn68Years:
		era++
	case diff < -instant.SecondsIn68Years:
		era--
	}
	return instant.FromEra(era, rawSecs, rawFrac)
}

// Offset computes the clock offset ((t2-t1)+(t3-t4))/2 for a request sent
// at t1, received by the server at t2, answered at t3 and received back at
// t4.
func Offset(t1, t2, t3, t4 instant.Instant) instant.Instant {
	return t2.Sub(t1).Add(t3.Sub(t4)).Div(2)
}
