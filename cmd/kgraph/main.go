// Package main provides the kgraph CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kgraphdb/kgraph/pkg/config"
	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/ingest"
	"github.com/kgraphdb/kgraph/pkg/kgraph"
	"github.com/kgraphdb/kgraph/pkg/query"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kgraph",
		Short: "kgraph - Knowledge Graph Store and Query Engine for Codebases",
		Long: `kgraph stores a persistent, incrementally-updated semantic graph of a
codebase: modules, classes, functions and their typed relationships,
with full-text search, shortest paths, similarity ranking, and
structural analysis on top.

Features:
  • Deterministic node identity across re-analysis
  • Transactional change batches with rollback
  • Inverted full-text index with fuzzy matching
  • BFS shortest path, clusters, dependency cycles
  • BadgerDB persistence, indices rebuilt on load`,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (YAML); KGRAPH_* env vars override")
	rootCmd.PersistentFlags().String("project", "", "Project path the command operates on")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kgraph v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project graph",
		Long:  "Create an empty graph for a project and persist it",
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	importCmd := &cobra.Command{
		Use:   "import [batch.json...]",
		Short: "Apply generator batch files to a project graph",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	rootCmd.AddCommand(importCmd)

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run a declarative query",
		Long:  "Run a query given as JSON via --json, or a simple type/limit selection via flags",
		RunE:  runQuery,
	}
	queryCmd.Flags().String("json", "", "Full query as JSON")
	queryCmd.Flags().StringSlice("type", nil, "Node types to select")
	queryCmd.Flags().Int("limit", 0, "Result limit")
	queryCmd.Flags().Bool("relationships", false, "Include incident relationships")
	rootCmd.AddCommand(queryCmd)

	searchCmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Full-text search over names, purposes, and documentation",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().Int("limit", 10, "Result limit")
	rootCmd.AddCommand(searchCmd)

	pathCmd := &cobra.Command{
		Use:   "path [from-id] [to-id]",
		Short: "Find the shortest path between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE:  runPath,
	}
	pathCmd.Flags().StringSlice("type", nil, "Relationship types to traverse (default: all)")
	rootCmd.AddCommand(pathCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute clusters and dependency cycles",
		RunE:  runAnalyze,
	}
	rootCmd.AddCommand(analyzeCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print project graph statistics",
		RunE:  runStats,
	}
	rootCmd.AddCommand(statsCmd)

	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "List known projects",
		RunE:  runProjects,
	}
	rootCmd.AddCommand(projectsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openDB loads configuration and opens the database for a command.
func openDB(cmd *cobra.Command) (*kgraph.DB, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return kgraph.Open(cfg)
}

// projectFlag resolves the --project flag, defaulting to the working
// directory so running inside the analyzed project just works.
func projectFlag(cmd *cobra.Command) (string, error) {
	project, _ := cmd.Flags().GetString("project")
	if project != "" {
		return project, nil
	}
	return os.Getwd()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInit(cmd *cobra.Command, args []string) error {
	project, err := projectFlag(cmd)
	if err != nil {
		return err
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := db.CreateProject(project)
	if err != nil {
		return err
	}
	if err := db.Save(project); err != nil {
		return err
	}

	fmt.Printf("✅ Initialized graph %s for %s\n", store.GraphID(), project)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	project, err := projectFlag(cmd)
	if err != nil {
		return err
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.CreateProject(project); err != nil {
		return err
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read batch %q: %w", path, err)
		}
		var batch ingest.Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("parse batch %q: %w", path, err)
		}

		res, err := db.Apply(cmd.Context(), project, batch)
		if err != nil {
			return fmt.Errorf("apply batch %q: %w", path, err)
		}
		fmt.Printf("✅ %s: %d nodes upserted, %d removed, %d edges upserted, %d removed",
			path, res.NodesUpserted, res.NodesRemoved, res.RelationshipsUpserted, res.RelationshipsRemoved)
		if len(res.Skipped) > 0 {
			fmt.Printf(" (⚠️  %d artifact(s) skipped)", len(res.Skipped))
			for _, skip := range res.Skipped {
				fmt.Fprintf(os.Stderr, "   ⚠️  %s: %s\n", skip.Path, skip.Message)
			}
		}
		fmt.Println()
	}

	return db.Save(project)
}

func runQuery(cmd *cobra.Command, args []string) error {
	project, err := projectFlag(cmd)
	if err != nil {
		return err
	}

	var q query.Query
	if raw, _ := cmd.Flags().GetString("json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return fmt.Errorf("parse query: %w", err)
		}
	} else {
		types, _ := cmd.Flags().GetStringSlice("type")
		for _, t := range types {
			q.Types = append(q.Types, graph.NodeType(t))
		}
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.IncludeRelationships, _ = cmd.Flags().GetBool("relationships")
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := db.Project(project)
	if err != nil {
		return err
	}
	res, err := db.Find(cmd.Context(), store.GraphID(), q)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runSearch(cmd *cobra.Command, args []string) error {
	project, err := projectFlag(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := db.Project(project)
	if err != nil {
		return err
	}
	hits, err := db.Search(cmd.Context(), store.GraphID(), args[0], limit)
	if err != nil {
		return err
	}
	for _, hit := range hits {
		fmt.Printf("%.3f  %-10s %-30s %s\n", hit.Score, hit.Node.Type, hit.Node.Name, hit.Node.Path)
	}
	if len(hits) == 0 {
		fmt.Println("No matches")
	}
	return nil
}

func runPath(cmd *cobra.Command, args []string) error {
	project, err := projectFlag(cmd)
	if err != nil {
		return err
	}

	var types []graph.RelationshipType
	typeNames, _ := cmd.Flags().GetStringSlice("type")
	for _, t := range typeNames {
		types = append(types, graph.RelationshipType(t))
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := db.Project(project)
	if err != nil {
		return err
	}
	path, err := db.FindShortestPath(cmd.Context(), store.GraphID(),
		graph.NodeID(args[0]), graph.NodeID(args[1]), types...)
	if err != nil {
		return err
	}

	if !path.Found {
		fmt.Println("No path found")
		return nil
	}
	for i, node := range path.Nodes {
		if i > 0 {
			rel := path.Relationships[i-1]
			fmt.Printf("  --[%s]-->\n", rel.Type)
		}
		fmt.Printf("%s (%s, %s)\n", node.Name, node.Type, node.Path)
	}
	fmt.Printf("✅ %d hop(s)\n", path.Length)
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	project, err := projectFlag(cmd)
	if err != nil {
		return err
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := db.Project(project)
	if err != nil {
		return err
	}
	report, err := db.Analyze(cmd.Context(), store.GraphID())
	if err != nil {
		return err
	}

	fmt.Printf("Clusters: %d\n", len(report.Clusters))
	for i, cluster := range report.Clusters {
		fmt.Printf("  #%d: %d node(s)\n", i+1, len(cluster))
	}
	fmt.Printf("Dependency cycles: %d\n", len(report.Cycles))
	for _, cycle := range report.Cycles {
		for i, id := range cycle {
			if i > 0 {
				fmt.Print(" -> ")
			}
			fmt.Print(shortID(id))
		}
		fmt.Printf(" -> %s\n", shortID(cycle[0]))
	}

	// Persist the refreshed cycle metrics.
	return db.Save(project)
}

func shortID(id graph.NodeID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

func runStats(cmd *cobra.Command, args []string) error {
	project, err := projectFlag(cmd)
	if err != nil {
		return err
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(project)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runProjects(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	projects := db.Projects()
	if len(projects) == 0 {
		fmt.Println("No projects")
		return nil
	}
	for _, path := range projects {
		fmt.Println(path)
	}
	return nil
}
