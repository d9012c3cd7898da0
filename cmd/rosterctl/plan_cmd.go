package main

import (
	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/reconcile"

	"github.com/spf13/cobra"
)

type planDecision struct {
	EntityID      string            `json:"entity_id"`
	Outcome       reconcile.Outcome `json:"outcome"`
	ChangedFields []string          `json:"changed_fields,omitempty"`
	Error         string            `json:"error,omitempty"`
}

type planOutput struct {
	Summary   domain.RunSummary     `json:"summary"`
	Decisions []planDecision        `json:"decisions,omitempty"`
	Appends   []domain.EntityRecord `json:"appends,omitempty"`
}

func newPlanCmd(opts *globalOptions) *cobra.Command {
	var (
		showUnchanged bool
		showRecords   bool
	)

	cmd := &cobra.Command{
		Use:   "plan <bucket> <object>",
		Short: "Show what run would append, without writing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, planErr := a.Orchestrator.Plan(cmd.Context(), domain.Trigger{Bucket: args[0], Name: args[1]})

			out := planOutput{Summary: result.Summary}
			for _, decision := range result.Plan.Decisions {
				if decision.Outcome == reconcile.OutcomeUnchanged && !showUnchanged {
					continue
				}
				entry := planDecision{
					EntityID:      decision.EntityID,
					Outcome:       decision.Outcome,
					ChangedFields: decision.ChangedFields,
				}
				if decision.Err != nil {
					entry.Error = decision.Err.Error()
				}
				out.Decisions = append(out.Decisions, entry)
			}
			if showRecords {
				out.Appends = result.Plan.Appends
			}

			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return planErr
		},
	}

	cmd.Flags().BoolVar(&showUnchanged, "unchanged", false, "Include unchanged keys")
	cmd.Flags().BoolVar(&showRecords, "records", false, "Include the records that would be appended")
	return cmd
}
