package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	pageSize int
	cursor   string
)

var recordsCmd = &cobra.Command{
	Use:   "records [ID]",
	Short: "List your documents, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) (any, error) {
		if err := requireSession(a); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return nonNil(a.api().GetDocument(cmd.Context(), args[0]))
		}
		return nonNil(a.api().ListDocuments(cmd.Context(), pageSize, cursor))
	}),
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrator commands",
}

var adminDocumentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List every document",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) (any, error) {
		if err := requireAdmin(a); err != nil {
			return nil, err
		}
		return nonNil(a.api().AdminDocuments(cmd.Context(), pageSize, cursor))
	}),
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List document owners",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) (any, error) {
		if err := requireAdmin(a); err != nil {
			return nil, err
		}
		return nonNil(a.api().AdminUsers(cmd.Context()))
	}),
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) (any, error) {
		if err := requireAdmin(a); err != nil {
			return nil, err
		}
		if err := a.api().DeleteDocument(cmd.Context(), args[0]); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": args[0]}, nil
	}),
}

var errAdminRequired = errors.New("admin access required")

// requireAdmin checks the local role. The API enforces it again.
func requireAdmin(a *app) error {
	if err := requireSession(a); err != nil {
		return err
	}
	if !a.store.Current().IsAdmin {
		return errAdminRequired
	}
	return nil
}

// nonNil drops typed nil pointers so nothing is printed on failure
func nonNil[T any](v *T, err error) (any, error) {
	if v == nil {
		return nil, err
	}
	return v, err
}

func init() {
	for _, c := range []*cobra.Command{recordsCmd, adminDocumentsCmd} {
		c.Flags().IntVar(&pageSize, "page-size", 0, "documents per page (server default when 0)")
		c.Flags().StringVar(&cursor, "cursor", "", "next_cursor from a previous page")
	}

	adminCmd.AddCommand(adminDocumentsCmd, adminUsersCmd, adminDeleteCmd)
	rootCmd.AddCommand(recordsCmd, adminCmd)
}
