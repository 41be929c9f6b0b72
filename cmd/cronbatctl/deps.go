package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kiranshivaraju/cronbat/pkg/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// manifest is the file read by `deps apply`:
//
//	dependencies:
//	  - parent: extract
//	    child: load
type manifest struct {
	Dependencies []models.DependencyEdge `yaml:"dependencies"`
}

var errEmptyManifest = errors.New("manifest declares no dependencies")

func parseManifest(data []byte) ([]models.DependencyEdge, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Dependencies) == 0 {
		return nil, errEmptyManifest
	}

	seen := make(map[models.DependencyEdge]bool, len(m.Dependencies))
	edges := make([]models.DependencyEdge, 0, len(m.Dependencies))
	for i, e := range m.Dependencies {
		e.ParentJobID = strings.TrimSpace(e.ParentJobID)
		e.ChildJobID = strings.TrimSpace(e.ChildJobID)
		if e.ParentJobID == "" || e.ChildJobID == "" {
			return nil, fmt.Errorf("dependency %d: parent and child are required", i+1)
		}
		if e.ParentJobID == e.ChildJobID {
			return nil, fmt.Errorf("dependency %d: job %s cannot depend on itself", i+1, e.ParentJobID)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		edges = append(edges, e)
	}
	return edges, nil
}

// planDependencies diffs the scheduler's edges against the desired set.
// Edges only present on the scheduler are removed when prune is set.
func planDependencies(current, desired []models.DependencyEdge, prune bool) (add, remove []models.DependencyEdge) {
	have := make(map[models.DependencyEdge]bool, len(current))
	for _, e := range current {
		have[e] = true
	}
	want := make(map[models.DependencyEdge]bool, len(desired))
	for _, e := range desired {
		want[e] = true
		if !have[e] {
			add = append(add, e)
		}
	}
	if prune {
		for _, e := range current {
			if !want[e] {
				remove = append(remove, e)
			}
		}
	}
	return add, remove
}

func (a *app) depsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Manage job dependencies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dependency edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			edges, err := c.ListDependencies(cmd.Context())
			if err != nil {
				return err
			}
			if len(edges) == 0 {
				fmt.Fprintln(a.out, "no dependencies")
				return nil
			}
			for _, e := range edges {
				fmt.Fprintf(a.out, "%s -> %s\n", e.ParentJobID, e.ChildJobID)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <parent-id> <child-id>",
		Short: "Make a job run after another succeeds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == args[1] {
				return fmt.Errorf("job %s cannot depend on itself", args[0])
			}
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			edge := models.DependencyEdge{ParentJobID: args[0], ChildJobID: args[1]}
			if err := c.CreateDependency(cmd.Context(), edge); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "added %s -> %s\n", edge.ParentJobID, edge.ChildJobID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <parent-id> <child-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a dependency edge",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.scheduler()
			if err != nil {
				return err
			}
			if err := c.DeleteDependency(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %s -> %s\n", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(a.depsApplyCmd())
	return cmd
}

func (a *app) depsApplyCmd() *cobra.Command {
	var (
		file   string
		prune  bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "apply -f <file.yaml>",
		Short: "Create the dependency edges declared in a YAML manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			desired, err := parseManifest(data)
			if err != nil {
				return err
			}

			c, err := a.scheduler()
			if err != nil {
				return err
			}
			current, err := c.ListDependencies(cmd.Context())
			if err != nil {
				return err
			}

			add, remove := planDependencies(current, desired, prune)
			if len(add) == 0 && len(remove) == 0 {
				fmt.Fprintln(a.out, "dependencies up to date")
				return nil
			}

			for _, e := range add {
				fmt.Fprintf(a.out, "+ %s -> %s\n", e.ParentJobID, e.ChildJobID)
				if dryRun {
					continue
				}
				if err := c.CreateDependency(cmd.Context(), e); err != nil {
					return fmt.Errorf("add %s -> %s: %w", e.ParentJobID, e.ChildJobID, err)
				}
			}
			for _, e := range remove {
				fmt.Fprintf(a.out, "- %s -> %s\n", e.ParentJobID, e.ChildJobID)
				if dryRun {
					continue
				}
				if err := c.DeleteDependency(cmd.Context(), e.ParentJobID, e.ChildJobID); err != nil {
					return fmt.Errorf("remove %s -> %s: %w", e.ParentJobID, e.ChildJobID, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "dependency manifest")
	cmd.Flags().BoolVar(&prune, "prune", false, "remove edges not in the manifest")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the changes without applying them")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
