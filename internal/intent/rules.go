package intent

import "regexp"

type rule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// rules are tried top to bottom against the lowercased, trimmed text and the
// first hit wins. ClearHistory, ShowSettings, ShowHelp, ChangePersona and
// ChangeModel keep this relative order, so "how do I use the pro model"
// shows help rather than changing the model.
var rules = []rule{
	{Start, compile(
		`^/start(@\w+)?$`,
		`^get started$`,
	)},
	{ClearHistory, compile(
		`^/clear(@\w+)?$`,
		`clear.*context`,
		`forget.*context`,
		`reset.*context`,
		`clear.*history`,
		`forget.*history`,
		`start.*fresh`,
		`new.*conversation`,
	)},
	{ShowSettings, compile(
		`^/settings(@\w+)?$`,
		`show.*settings`,
		`open.*settings`,
		`^settings$`,
		`my.*settings`,
		`preferences`,
	)},
	{ShowHelp, compile(
		`^/help(@\w+)?$`,
		`^help$`,
		`commands`,
		`what.*can.*do`,
		`how.*use`,
	)},
	{ChangePersona, compile(
		`change.*persona`,
		`switch.*persona`,
		`different.*persona`,
		`change.*personality`,
		`persona to`,
	)},
	{ChangeModel, compile(
		`change.*model`,
		`switch.*model`,
		`use.*model`,
	)},
	{UpgradePlan, compile(
		`^/upgrade(@\w+)?$`,
		`upgrade`,
		`buy.*(plan|subscription)`,
		`subscribe to`,
	)},
	{ShowPlan, compile(
		`^/plan(@\w+)?$`,
		`^plan$`,
		`my.*plan`,
		`show.*plan`,
		`what.*plan`,
		`subscription status`,
	)},
	{Feedback, compile(
		`^/feedback\b`,
		`^feedback\b`,
		`report.*(bug|problem|issue)`,
		`i have (a )?suggestion`,
	)},
}
