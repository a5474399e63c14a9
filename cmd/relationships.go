package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/s0up4200/cupid/cupid"
)

var proposeKind string

// graphCmd prints the relationship graph
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show every user and accepted relationship",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		auth, err := authenticate(ctx)
		if err != nil {
			return err
		}
		graph, err := auth.Graph(ctx)
		if err != nil {
			return fmt.Errorf("failed to get graph: %w", err)
		}

		view := graphView{
			Users:         make([]userView, 0, len(graph.Users)),
			Relationships: newRelationshipViews(graph.Relationships),
		}
		for _, id := range slices.Sorted(maps.Keys(graph.Users)) {
			view.Users = append(view.Users, newUserView(graph.Users[id]))
		}
		return newPrinter(cmd.OutOrStdout()).graph(view)
	},
}

// relationshipCmd groups commands acting on the relationship between the
// acting user and another user
var relationshipCmd = &cobra.Command{
	Use:     "relationship",
	Aliases: []string{"rel"},
	Short:   "Propose, accept or leave relationships",
	Long: `Act on the relationship between the acting user and another user.
A user session acts as its own user. An app picks the user with --as.`,
}

var relationshipShowCmd = &cobra.Command{
	Use:   "show OTHER_ID",
	Short: "Show the relationship or proposal with another user",
	Args:  cobra.ExactArgs(1),
	RunE: relationshipAction(func(ctx context.Context, actor cupid.Actor, other int64) (*cupid.Relationship, error) {
		return actor.Relationship(ctx, other)
	}),
}

var relationshipProposeCmd = &cobra.Command{
	Use:   "propose OTHER_ID",
	Short: "Propose a relationship to another user",
	Args:  cobra.ExactArgs(1),
	RunE: relationshipAction(func(ctx context.Context, actor cupid.Actor, other int64) (*cupid.Relationship, error) {
		kind, err := cupid.ParseRelationshipKind(proposeKind)
		if err != nil {
			return nil, err
		}
		return actor.Propose(ctx, other, kind)
	}),
}

var relationshipAcceptCmd = &cobra.Command{
	Use:   "accept OTHER_ID",
	Short: "Accept a proposal from another user",
	Args:  cobra.ExactArgs(1),
	RunE: relationshipAction(func(ctx context.Context, actor cupid.Actor, other int64) (*cupid.Relationship, error) {
		rel, err := actor.Relationship(ctx, other)
		if err != nil {
			return nil, err
		}
		if err := rel.Accept(ctx); err != nil {
			return nil, err
		}
		return rel, nil
	}),
}

var relationshipLeaveCmd = &cobra.Command{
	Use:   "leave OTHER_ID",
	Short: "Leave a relationship, or withdraw or reject a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: relationshipAction(func(ctx context.Context, actor cupid.Actor, other int64) (*cupid.Relationship, error) {
		rel, err := actor.Relationship(ctx, other)
		if err != nil {
			return nil, err
		}
		if err := rel.Delete(ctx); err != nil {
			return nil, err
		}
		return rel, nil
	}),
}

// relationshipAction wraps the common argument parsing, authentication and
// output of the relationship subcommands
func relationshipAction(action func(ctx context.Context, actor cupid.Actor, other int64) (*cupid.Relationship, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		auth, err := authenticate(ctx)
		if err != nil {
			return err
		}
		actor, err := actingUser(ctx, auth, actAs)
		if err != nil {
			return err
		}

		rel, err := action(ctx, actor, ids[0])
		if err != nil {
			return fmt.Errorf("failed to %s relationship with user %d: %w", cmd.Name(), ids[0], err)
		}
		logger.Debug().Int64("relationship", rel.ID).Str("action", cmd.Name()).Msg("Relationship updated")
		return newPrinter(cmd.OutOrStdout()).relationship(newRelationshipView(rel))
	}
}

func init() {
	relationshipProposeCmd.Flags().StringVarP(&proposeKind, "kind", "k", string(cupid.KindMarriage), "relationship kind: marriage or adoption")

	for _, sub := range []*cobra.Command{relationshipShowCmd, relationshipProposeCmd, relationshipAcceptCmd, relationshipLeaveCmd} {
		sub.Flags().Int64Var(&actAs, "as", 0, "user to act as (required for apps)")
		relationshipCmd.AddCommand(sub)
	}
}
