package commands

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"gopherai-docqa/internal/model"
	mysqlClient "gopherai-docqa/internal/platform/mysql"
	"gopherai-docqa/internal/retrieval"
)

func NewMigrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				if err := mysqlClient.Migrate(ctx, env.DB); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func NewListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List an owner's documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOwner(); err != nil {
				return err
			}
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				docs, err := env.Services.Documents.List(ctx, ownerID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(docs) == 0 {
					fmt.Fprintln(out, "no documents")
					return nil
				}
				for _, d := range docs {
					fmt.Fprintf(out, "%s\t%s\t%s\n", d.ID, d.Status, d.Filename)
				}
				return nil
			})
		},
	}
}

func NewStatusCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOwner(); err != nil {
				return err
			}
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				doc, err := env.Services.Documents.Get(ctx, ownerID, args[0])
				if err != nil {
					return err
				}
				printDocument(cmd, doc)
				return nil
			})
		},
	}
}

func NewTransitionCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <document-id> <status>",
		Short: "Move a document to another lifecycle status",
		Long: `Move a document to another lifecycle status.

Moving backwards or to the current status leaves the document unchanged.
Error states are terminal.

Statuses: ` + statusList(),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOwner(); err != nil {
				return err
			}
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				doc, err := env.Services.Lifecycle.Transition(ctx, ownerID, args[0], model.DocumentStatus(args[1]))
				if err != nil {
					return err
				}
				printDocument(cmd, doc)
				return nil
			})
		},
	}
}

func NewFacetsCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "facets [document-id]",
		Short: "Count chunks per element type and page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireOwner(); err != nil {
				return err
			}
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				var (
					counts *retrieval.FacetCounts
					err    error
				)
				if len(args) == 1 {
					counts, err = env.Services.Documents.Facets(ctx, ownerID, args[0])
				} else {
					counts, err = env.Services.Documents.CorpusFacets(ctx, ownerID)
				}
				if err != nil {
					return err
				}
				printFacets(cmd, counts)
				return nil
			})
		},
	}
}

func printDocument(cmd *cobra.Command, doc *model.Document) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", doc.ID)
	fmt.Fprintf(out, "filename: %s\n", doc.Filename)
	fmt.Fprintf(out, "status:   %s\n", doc.Status)
	if doc.ErrorMessage != "" {
		fmt.Fprintf(out, "error:    %s\n", doc.ErrorMessage)
	}
}

func printFacets(cmd *cobra.Command, counts *retrieval.FacetCounts) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "element types:")
	for _, k := range sortedKeys(counts.ElementTypes) {
		fmt.Fprintf(out, "  %-12s %d\n", k, counts.ElementTypes[k])
	}
	fmt.Fprintln(out, "pages:")
	for _, p := range sortedKeys(counts.Pages) {
		fmt.Fprintf(out, "  %-12d %d\n", p, counts.Pages[p])
	}
}

// sortedKeys returns the map's keys in ascending order.
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func statusList() string {
	statuses := model.DocumentStatuses()
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
