package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"usergrid/internal/grid"
	"usergrid/pkg/domain"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every user",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := opts.client().LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			s := grid.NewSession()
			s.Initialize(users)
			return writeRows(cmd.OutOrStdout(), opts.output, s.Rows())
		},
	}
}

func newSortCmd(opts *globalOptions) *cobra.Command {
	var desc bool
	cmd := &cobra.Command{
		Use:   "sort FIELD",
		Short: "List users ordered by a field",
		Example: `usergrid sort last_name
usergrid sort email --desc -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := domain.ParseField(args[0])
			if err != nil {
				return err
			}
			users, err := opts.client().LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			s := grid.NewSession()
			s.Initialize(users)
			if err := sortSession(s, field, desc); err != nil {
				return err
			}
			return writeRows(cmd.OutOrStdout(), opts.output, s.Rows())
		},
	}
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	return cmd
}

// sortSession drives the session's toggle until it reaches the wanted order.
func sortSession(s *grid.Session, field domain.Field, desc bool) error {
	want := grid.Ascending
	if desc {
		want = grid.Descending
	}
	for range 2 {
		s.SortBy(field)
		if got := s.Sort(); got.Field == field && got.Direction == want {
			return nil
		}
	}
	return errors.Errorf("cannot sort by %s while the session is locked", field)
}
