package translate

import "context"

// Handle is the Preload handle of §6.1/§4.7: it pins a resolved language
// pair (after alias/pivot/script-routing planning) so repeated calls skip
// re-planning, and exposes discardTranslations against that specific pair.
type Handle struct {
	t    *Translator
	plan plan
}

// Preload resolves from/to once and returns a Handle bound to that plan,
// eagerly warming the Engine Pool (or Han-script tables) it will use.
func (t *Translator) Preload(ctx context.Context, from, to string) (*Handle, error) {
	from, to, err := t.resolveLanguages(from, to)
	if err != nil {
		return nil, err
	}

	p := computePlan(from, to)
	h := &Handle{t: t, plan: p}

	if !p.pureScript && p.effectiveFrom != p.effectiveTo {
		if _, err := t.cache.GetOrCreate(ctx, PairKey(p.effectiveFrom, p.effectiveTo)); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Translate runs input through the handle's pinned plan. input is a string
// or []string, same contract as Translator.Translate.
func (h *Handle) Translate(ctx context.Context, input any, isHTML bool) (any, error) {
	texts, isList, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}
	if h.plan.effectiveFrom == h.plan.effectiveTo && !h.plan.pureScript {
		return reassemble(texts, isList), nil
	}
	results, err := h.t.execute(ctx, h.plan, texts, isHTML)
	if err != nil {
		return nil, err
	}
	return reassemble(results, isList), nil
}

// DiscardTranslations sends DiscardQueue to every worker backing this
// handle's pair and rejects all in-flight messages against it with
// Discarded.
func (h *Handle) DiscardTranslations() {
	if h.plan.pureScript {
		return
	}
	h.t.discardTranslations(PairKey(h.plan.effectiveFrom, h.plan.effectiveTo))
}
