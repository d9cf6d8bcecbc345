package routing

import "sort"

// RouteCandidate is one entry in a RoutePlan.
type RouteCandidate struct {
	Provider string
	Model    string
	Profile  *ModelProfile
}

// Ref returns the canonical Breaker key for this candidate.
func (c RouteCandidate) Ref() string {
	return c.Provider + ":" + c.Model
}

// RoutePlan is an ordered list of candidates to try in turn.
type RoutePlan []RouteCandidate

// RoutePreference steers candidate ordering without excluding anything.
type RoutePreference struct {
	Provider           string // explicit provider, ordered first when available
	Model              string // explicit model, emitted for every ordered provider
	Class              ModelClass
	PreferredProviders []string
	AllowFallback      bool
}

// RouteConstraints hard-filters candidates.
type RouteConstraints struct {
	MustStream       bool
	RequiresTools    bool
	AllowedProviders []string
	BlockedProviders []string
	MinContextTokens *int
}

// ScoreFunc ranks a candidate; lower is better. The Supervisor supplies
// latencyRank*10 + costRank + breaker.GetPenalty(ref).
type ScoreFunc func(c RouteCandidate) int

// Plan produces an ordered RoutePlan from the catalog, provider
// availability, preference, constraints, and an optional score function.
func Plan(catalog *Catalog, availability map[string]bool, pref RoutePreference, cons RouteConstraints, score ScoreFunc) RoutePlan {
	providers := availableProviders(availability, cons)
	providers = orderProviders(providers, pref)

	var plan RoutePlan
	if pref.Model != "" {
		// An explicit model is emitted for every ordered provider, whether or
		// not a provider was named alongside it.
		for _, p := range providers {
			profile, ok := catalog.Find(p, pref.Model)
			var prof *ModelProfile
			if ok {
				prof = &profile
			}
			plan = append(plan, RouteCandidate{Provider: p, Model: pref.Model, Profile: prof})
		}
	} else {
		class := pref.Class
		if class == "" {
			class = ClassDefault
		}
		for _, p := range providers {
			for _, profile := range catalog.ListByProvider(p) {
				if !profile.hasClass(class) {
					continue
				}
				plan = append(plan, toCandidate(profile))
			}
		}
	}

	plan = applyConstraints(plan, cons)

	if len(plan) == 0 && pref.AllowFallback {
		plan = fallbackPlan(catalog, providers)
		plan = applyConstraints(plan, cons)
	}

	if score != nil {
		sort.SliceStable(plan, func(i, j int) bool {
			return score(plan[i]) < score(plan[j])
		})
	}

	if !pref.AllowFallback && len(plan) > 1 {
		plan = plan[:1]
	}

	return plan
}

func availableProviders(availability map[string]bool, cons RouteConstraints) []string {
	allowed := toSet(cons.AllowedProviders)
	blocked := toSet(cons.BlockedProviders)

	var out []string
	for p, ok := range availability {
		if !ok {
			continue
		}
		if allowed != nil && !allowed[p] {
			continue
		}
		if blocked[p] {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out) // deterministic base order before preference reordering
	return out
}

func orderProviders(providers []string, pref RoutePreference) []string {
	set := toSet(providers)
	var ordered []string
	seen := map[string]bool{}

	if pref.Provider != "" && set[pref.Provider] {
		ordered = append(ordered, pref.Provider)
		seen[pref.Provider] = true
	}
	for _, p := range pref.PreferredProviders {
		if set[p] && !seen[p] {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}
	for _, p := range providers {
		if !seen[p] {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}
	return ordered
}

func applyConstraints(plan RoutePlan, cons RouteConstraints) RoutePlan {
	var out RoutePlan
	for _, c := range plan {
		if c.Profile == nil {
			out = append(out, c)
			continue
		}
		caps := c.Profile.Capabilities
		if cons.MustStream && caps != nil && !caps.Streaming {
			continue
		}
		if cons.RequiresTools && caps != nil && !caps.Tools {
			continue
		}
		if cons.MinContextTokens != nil && c.Profile.MaxContextTokens != nil &&
			*c.Profile.MaxContextTokens < *cons.MinContextTokens {
			continue
		}
		out = append(out, c)
	}
	return out
}

func fallbackPlan(catalog *Catalog, providers []string) RoutePlan {
	set := toSet(providers)
	var plan RoutePlan
	for _, profile := range catalog.All() {
		if set[profile.ProviderID] {
			plan = append(plan, toCandidate(profile))
		}
	}
	return plan
}

func toCandidate(p ModelProfile) RouteCandidate {
	return RouteCandidate{Provider: p.ProviderID, Model: p.ModelID, Profile: &p}
}

func toSet(items []string) map[string]bool {
	if items == nil {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
