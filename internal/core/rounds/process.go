package rounds

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/oracle"
	"github.com/agenthands/roundup/internal/driver"
)

// process adjudicates one cluster, applies the decision and checkpoints.
func (o *Orchestrator) process(ctx context.Context, sel Selected) error {
	c := sel.Cluster
	log := o.logger.With().Str("cluster", c.ID).Int("index", sel.Index).Logger()

	current, err := o.deps.Store.GetItems(ctx, c.Members)
	if err != nil {
		return &StoreError{Op: "read cluster members", Err: err}
	}
	if absent := missingIDs(c.Members, current); len(absent) > 0 {
		o.warn("%s skipped: members missing from store: %s", c.ID, strings.Join(absent, ", "))
		return o.resolve(sel)
	}
	req, inactive := oracle.NewRequest(c, activeOnly(current), o.st.CurrentRound)
	if len(req.Members) < 2 {
		o.warn("%s skipped: fewer than two active members", c.ID)
		return o.resolve(sel)
	}
	if len(inactive) > 0 {
		log.Debug().Strs("inactive", inactive).Msg("Inactive members left out of request")
	}

	decision, err := o.adjudicate(ctx, req)
	if err != nil {
		return err
	}
	o.report.ClustersAdjudicated++
	log.Info().Str("decision", string(decision.Kind())).Int("merges", len(decision.Merges())).Msg("Cluster adjudicated")

	if err := o.apply(ctx, c, req.MemberIDs(), decision); err != nil {
		return err
	}
	return o.resolve(sel)
}

func (o *Orchestrator) resolve(sel Selected) error {
	o.st.MarkResolved(sel.Cluster.ID, sel.Index)
	return o.checkpoint()
}

// adjudicate calls the oracle under the retry policy. Exhausted attempts
// become a ManualReview decision. Only cancellation and the runtime budget
// end it with an error.
func (o *Orchestrator) adjudicate(ctx context.Context, req oracle.Request) (model.Decision, error) {
	members := req.MemberIDs()
	attempts := o.deps.Policy.Attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := o.deps.Policy.Wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if !o.budget.Allows(o.now().Sub(o.start)) {
			return nil, errBudgetExceeded
		}

		o.report.OracleCalls++
		raw, err := o.deps.Oracle.Adjudicate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			o.logger.Warn().Err(err).Str("cluster", req.ClusterID).Int("attempt", attempt).Msg("Oracle call failed")
			continue
		}

		decision, warnings, err := oracle.Validate(raw, members)
		for _, w := range warnings {
			o.warn("%s: %s", req.ClusterID, w)
		}
		if err != nil {
			lastErr = err
			o.logger.Warn().Err(err).Str("cluster", req.ClusterID).Int("attempt", attempt).Msg("Oracle reply rejected")
			continue
		}
		return decision, nil
	}

	o.warn("%s routed to manual review after %d failed attempts: %v", req.ClusterID, attempts, lastErr)
	return model.ManualReview{Notes: fmt.Sprintf("oracle failed after %d attempts: %v", attempts, lastErr)}, nil
}

// apply writes the decision. Every transition and its record are one store
// mutation; records reach the decision log only after the store accepted them.
func (o *Orchestrator) apply(ctx context.Context, c model.Cluster, members []string, d model.Decision) error {
	switch d := d.(type) {
	case model.MergeAll, model.MergeSubset:
		for _, p := range o.resolveChains(c.ID, d.Merges()) {
			applied, err := o.mutate(ctx, c.ID, driver.Mutation{
				ItemID:   p.Src,
				From:     []model.ItemStatus{model.StatusActive},
				To:       model.StatusSuperseded,
				TargetID: p.Dst,
				Record:   o.record(p.Src, model.ActionMerge, p.Dst, withCluster(c.ID, d.Note())),
			})
			if err != nil {
				return err
			}
			if applied {
				o.report.MergesApplied++
			}
		}
	case model.ManualReview:
		o.report.queueManualReview(c.ID)
		for _, id := range members {
			if _, err := o.mutate(ctx, c.ID, driver.Mutation{
				ItemID: id,
				From:   []model.ItemStatus{model.StatusActive},
				To:     model.StatusManualReview,
				Record: o.record(id, model.ActionManualReview, "", withCluster(c.ID, d.Notes)),
			}); err != nil {
				return err
			}
		}
	case model.KeepSeparate:
		for _, id := range members {
			if _, err := o.mutate(ctx, c.ID, driver.Mutation{
				ItemID: id,
				Record: o.record(id, model.ActionKeepSeparate, "", withCluster(c.ID, d.Notes)),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveChains points every merge at the member that survives the
// cluster's merges, so B->A, A->C becomes B->C, A->C. Pairs caught in a
// cycle are dropped.
func (o *Orchestrator) resolveChains(clusterID string, pairs []model.MergePair) []model.MergePair {
	next := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if _, ok := next[p.Src]; ok {
			o.warn("%s: %s merged into more than one target, keeping the first", clusterID, p.Src)
			continue
		}
		next[p.Src] = p.Dst
	}

	var out []model.MergePair
	for _, p := range pairs {
		if next[p.Src] != p.Dst {
			continue
		}
		target, seen := p.Dst, map[string]bool{p.Src: true}
		cycle := false
		for {
			n, ok := next[target]
			if !ok {
				break
			}
			if seen[target] {
				cycle = true
				break
			}
			seen[target] = true
			target = n
		}
		if cycle || target == p.Src {
			o.warn("%s: merge of %s into %s dropped: merge cycle", clusterID, p.Src, p.Dst)
			continue
		}
		out = append(out, model.MergePair{Src: p.Src, Dst: target})
	}
	return out
}

// mutate applies m to the store. In a dry run it only records the action
// as planned and reports nothing applied.
func (o *Orchestrator) mutate(ctx context.Context, clusterID string, m driver.Mutation) (bool, error) {
	if o.opts.DryRun {
		o.report.PlannedActions = append(o.report.PlannedActions, PlannedAction{
			ClusterID: clusterID,
			EntryID:   m.ItemID,
			Action:    m.Record.Action,
			TargetID:  m.Record.TargetID,
		})
		return false, nil
	}

	applied, err := o.deps.Store.Apply(ctx, m)
	if errors.Is(err, driver.ErrNotFound) {
		o.warn("%s: %s vanished from the store, %s skipped", clusterID, m.ItemID, m.Record.Action)
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: fmt.Sprintf("%s %s", m.Record.Action, m.ItemID), Err: err}
	}
	if !applied {
		o.logger.Debug().Str("item", m.ItemID).Str("action", string(m.Record.Action)).Msg("Item not eligible, no-op")
		return false, nil
	}
	if o.deps.Log != nil {
		if err := o.deps.Log.Append(m.Record); err != nil {
			return true, &StoreError{Op: "decision log", Err: err}
		}
	}
	return true, nil
}

func (o *Orchestrator) record(entryID string, action model.Action, targetID, notes string) model.DecisionRecord {
	return model.DecisionRecord{
		Timestamp: o.now(),
		User:      o.opts.User,
		EntryID:   entryID,
		Action:    action,
		TargetID:  targetID,
		Notes:     notes,
	}
}

func withCluster(clusterID, notes string) string {
	if notes == "" {
		return clusterID
	}
	return clusterID + ": " + notes
}

func activeOnly(items map[string]model.Item) map[string]model.Item {
	out := make(map[string]model.Item, len(items))
	for id, it := range items {
		if it.Active() {
			out[id] = it
		}
	}
	return out
}

func missingIDs(ids []string, items map[string]model.Item) []string {
	var out []string
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
