// Package main provides the specbridge CLI: a contract bridge that keeps
// HTTP provider and consumer repositories in sync without a central registry.
//
// Consumer side:
//   - specbridge init -role consumer
//   - specbridge add-dependency -name backend-api -git-url ... -contract-path ...
//   - specbridge sync [dependency]
//   - specbridge validate [dependency]
//
// Provider side:
//   - specbridge init -role provider
//   - specbridge extract
//   - specbridge breaking-changes [-old f -new f]
//   - specbridge record-consumer -consumer name -expectations file
//
// Either side: specbridge status, specbridge remove-dependency -name x.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"specbridge/internal/breaking"
	"specbridge/internal/config"
	"specbridge/internal/contract"
	"specbridge/internal/drift"
	"specbridge/internal/extract"
	"specbridge/internal/logging"
	"specbridge/internal/syncer"
)

func usage() {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n\n", prog)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  init               create the bridge registry in this repository")
	fmt.Fprintln(os.Stderr, "  add-dependency     register a provider dependency")
	fmt.Fprintln(os.Stderr, "  remove-dependency  drop a dependency and its cached contract")
	fmt.Fprintln(os.Stderr, "  sync               pull provider contracts into the local cache")
	fmt.Fprintln(os.Stderr, "  validate           check local API calls against cached contracts")
	fmt.Fprintln(os.Stderr, "  extract            build this provider's contract from source")
	fmt.Fprintln(os.Stderr, "  breaking-changes   compare two contract versions for consumer impact")
	fmt.Fprintln(os.Stderr, "  record-consumer    annotate the provided contract with a consumer's usage")
	fmt.Fprintln(os.Stderr, "  status             show registry and cache state")
	fmt.Fprintf(os.Stderr, "\nRun %s <command> -h for command flags.\n", prog)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "add-dependency":
		err = cmdAddDependency(args)
	case "remove-dependency":
		err = cmdRemoveDependency(args)
	case "sync":
		err = cmdSync(args)
	case "validate":
		err = cmdValidate(args)
	case "extract":
		err = cmdExtract(args)
	case "breaking-changes":
		err = cmdBreakingChanges(args)
	case "record-consumer":
		err = cmdRecordConsumer(args)
	case "status":
		err = cmdStatus(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "ERROR: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (root, level *string) {
	root = fs.String("root", ".", "repository root")
	level = fs.String("log-level", "warn", "log level: debug, info, warn, error")
	return root, level
}

func loadEnv(root, level string) (*config.Config, *zap.Logger, error) {
	log, err := logging.New(level)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(filepath.Join(root, config.DefaultPath))
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	root, _ := commonFlags(fs)
	role := fs.String("role", config.RoleConsumer, "repository role: consumer, provider, both")
	repoID := fs.String("repo-id", "", "stable identifier for this repository (default: directory name)")
	force := fs.Bool("force", false, "overwrite an existing registry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := filepath.Join(*root, config.DefaultPath)
	if config.Exists(path) && !*force {
		return fmt.Errorf("registry already exists at %s (use -force to overwrite)", path)
	}

	cfg := config.Default(*role, path)
	cfg.RepoID = *repoID
	if cfg.RepoID == "" {
		abs, err := filepath.Abs(*root)
		if err != nil {
			return err
		}
		cfg.RepoID = filepath.Base(abs)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}

	contractsDir := filepath.Join(*root, filepath.FromSlash(config.ContractsDir))
	if err := os.MkdirAll(contractsDir, 0o755); err != nil {
		return err
	}
	readme := filepath.Join(contractsDir, "README.md")
	if _, err := os.Stat(readme); os.IsNotExist(err) {
		body := "# Bridge contracts\n\n" +
			"Cached provider contracts and consumer-expectations files managed by\n" +
			"specbridge. Do not edit by hand; run `specbridge sync` to refresh.\n"
		if err := os.WriteFile(readme, []byte(body), 0o644); err != nil {
			return err
		}
	}

	fmt.Printf("Initialized bridge registry at %s (role=%s, repo_id=%s)\n", path, cfg.Role, cfg.RepoID)
	return nil
}

func cmdAddDependency(args []string) error {
	fs := flag.NewFlagSet("add-dependency", flag.ExitOnError)
	root, _ := commonFlags(fs)
	name := fs.String("name", "", "dependency name (required)")
	depType := fs.String("type", "api", "dependency type")
	method := fs.String("sync-method", config.SyncGit, "sync method: git, http, s3")
	gitURL := fs.String("git-url", "", "provider repository URL (required for git)")
	contractPath := fs.String("contract-path", "", "contract file path inside the provider repo (required)")
	localCache := fs.String("local-cache", "", "repo-relative cache path (default: .bridge/contracts/<name>-api.yaml)")
	onCommit := fs.Bool("sync-on-commit", false, "sync this dependency from the pre-commit hook")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	if *contractPath == "" {
		return fmt.Errorf("-contract-path is required")
	}

	cfg, _, err := loadEnv(*root, "warn")
	if err != nil {
		return err
	}
	cache := *localCache
	if cache == "" {
		cache = config.ContractsDir + "/" + *name + "-api.yaml"
	}
	dep := config.Dependency{
		Name:         *name,
		Type:         *depType,
		SyncMethod:   *method,
		GitURL:       *gitURL,
		ContractPath: *contractPath,
		LocalCache:   cache,
		SyncOnCommit: *onCommit,
	}
	cfg.Dependencies[dep.Name] = dep
	if err := cfg.Validate(); err != nil {
		delete(cfg.Dependencies, dep.Name)
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("Added dependency %s (%s)\n", dep.Name, dep.SyncMethod)
	return nil
}

func cmdRemoveDependency(args []string) error {
	fs := flag.NewFlagSet("remove-dependency", flag.ExitOnError)
	root, _ := commonFlags(fs)
	name := fs.String("name", "", "dependency name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	cfg, _, err := loadEnv(*root, "warn")
	if err != nil {
		return err
	}
	if err := cfg.RemoveDependency(*name, *root); err != nil {
		return err
	}
	fmt.Printf("Removed dependency %s\n", *name)
	return nil
}

func cmdSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	root, level := commonFlags(fs)
	timeout := fs.Duration("git-timeout", 0, "per-fetch git timeout (0 = no limit)")
	showPatch := fs.Bool("show-patch", false, "print a unified diff of each changed cache file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadEnv(*root, *level)
	if err != nil {
		return err
	}
	defer log.Sync()

	eng := syncer.New(cfg, *root, log,
		syncer.WithGitTimeout(*timeout),
		syncer.WithProgress(func(dep, status string) {
			fmt.Printf("[%s] %s\n", dep, status)
		}))

	var results []syncer.Result
	if fs.NArg() > 0 {
		results = []syncer.Result{eng.SyncDependency(context.Background(), fs.Arg(0))}
	} else {
		results = eng.SyncAll(context.Background())
	}
	if len(results) == 0 {
		fmt.Println("No dependencies configured.")
		return nil
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Stale():
			fmt.Printf("WARN  %s: using cached contract (%d endpoints)\n", r.DependencyName, r.EndpointCount)
		case r.Success:
			fmt.Printf("OK    %s: %d endpoints\n", r.DependencyName, r.EndpointCount)
		default:
			failed++
			fmt.Printf("FAIL  %s\n", r.DependencyName)
		}
		for _, c := range r.Changes {
			fmt.Printf("      %s\n", c)
		}
		for _, e := range r.Errors {
			fmt.Printf("      error: %s\n", e)
		}
		if *showPatch && r.Patch != "" {
			fmt.Print(r.Patch)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d dependencies failed to sync", failed, len(results))
	}
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	root, level := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, log, err := loadEnv(*root, *level)
	if err != nil {
		return err
	}
	defer log.Sync()

	det := drift.New(cfg, *root, log)
	byDep := map[string][]drift.Issue{}
	if fs.NArg() > 0 {
		name := fs.Arg(0)
		byDep[name] = det.Detect(name)
	} else {
		byDep = det.DetectAll()
	}
	if len(byDep) == 0 {
		fmt.Println("No dependencies configured.")
		return nil
	}

	total := 0
	for _, name := range sortedKeys(byDep) {
		rep := drift.Summarize(name, byDep[name])
		total += rep.TotalIssues
		fmt.Println(rep.Message)
		for _, iss := range rep.Issues {
			fmt.Printf("  [%s] %s %s (%s)\n", iss.Severity, iss.Method, iss.Endpoint, iss.Location)
			fmt.Printf("    %s\n", iss.Message)
			if iss.Suggestion != "" {
				fmt.Printf("    suggestion: %s\n", iss.Suggestion)
			}
		}
	}
	if total > 0 {
		return fmt.Errorf("%d drift issue(s) found", total)
	}
	return nil
}

func cmdExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	root, level := commonFlags(fs)
	output := fs.String("output", "", "contract output path (default: provides.contract_file from the registry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, log, err := loadEnv(*root, *level)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Role != config.RoleProvider && cfg.Role != config.RoleBoth {
		return fmt.Errorf("extract requires a provider role, registry says %q", cfg.Role)
	}
	patterns := cfg.Provides.ExtractFrom
	if len(patterns) == 0 {
		return fmt.Errorf("provides.extract_from is empty in the registry")
	}
	out := *output
	if out == "" {
		out = cfg.Provides.ContractFile
	}
	if out == "" {
		return fmt.Errorf("no output path: set -output or provides.contract_file")
	}
	outPath := filepath.Join(*root, filepath.FromSlash(out))

	c, err := extract.New(*root, log).Extract(patterns)
	if err != nil {
		return err
	}
	c.RepoID = cfg.RepoID

	// Consumer annotations live on the published contract, not in source;
	// carry them over from the previous version so extraction never loses them.
	if prev, err := contract.Load(outPath); err == nil {
		carryConsumers(prev, c)
	}

	if err := c.Validate(); err != nil {
		return err
	}
	if err := contract.Save(c, outPath); err != nil {
		return err
	}
	fmt.Printf("Extracted %d endpoints, %d models -> %s\n", len(c.Endpoints), len(c.Models), out)
	return nil
}

func cmdBreakingChanges(args []string) error {
	fs := flag.NewFlagSet("breaking-changes", flag.ExitOnError)
	root, level := commonFlags(fs)
	oldPath := fs.String("old", "", "old contract file (default: provides.contract_file)")
	newPath := fs.String("new", "", "new contract file (default: fresh extraction from source)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, log, err := loadEnv(*root, *level)
	if err != nil {
		return err
	}
	defer log.Sync()

	op := *oldPath
	if op == "" {
		if cfg.Provides.ContractFile == "" {
			return fmt.Errorf("no old contract: set -old or provides.contract_file")
		}
		op = filepath.Join(*root, filepath.FromSlash(cfg.Provides.ContractFile))
	}
	oldC, err := contract.Load(op)
	if err != nil {
		return fmt.Errorf("load old contract: %w", err)
	}

	var newC *contract.Contract
	if *newPath != "" {
		newC, err = contract.Load(*newPath)
		if err != nil {
			return fmt.Errorf("load new contract: %w", err)
		}
	} else {
		if len(cfg.Provides.ExtractFrom) == 0 {
			return fmt.Errorf("no new contract: set -new or provides.extract_from")
		}
		newC, err = extract.New(*root, log).Extract(cfg.Provides.ExtractFrom)
		if err != nil {
			return err
		}
		carryConsumers(oldC, newC)
	}

	changes := breaking.Detect(oldC, newC)
	if len(changes) == 0 {
		fmt.Println("No breaking changes detected.")
		return nil
	}
	blocking := 0
	for _, ch := range changes {
		fmt.Printf("[%s] %s\n", ch.Severity, ch.Message)
		if len(ch.AffectedConsumers) > 0 {
			fmt.Printf("  consumers: %v\n", ch.AffectedConsumers)
		}
		fmt.Printf("  suggestion: %s\n", ch.Suggestion)
		if ch.Severity == drift.SeverityError {
			blocking++
		}
	}
	if blocking > 0 {
		return fmt.Errorf("%d breaking change(s) affect active consumers", blocking)
	}
	return nil
}

func cmdRecordConsumer(args []string) error {
	fs := flag.NewFlagSet("record-consumer", flag.ExitOnError)
	root, _ := commonFlags(fs)
	consumer := fs.String("consumer", "", "consumer repository name (required)")
	expFile := fs.String("expectations", "", "path to the consumer's expectations file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *consumer == "" || *expFile == "" {
		return fmt.Errorf("-consumer and -expectations are required")
	}
	cfg, _, err := loadEnv(*root, "warn")
	if err != nil {
		return err
	}
	if cfg.Provides.ContractFile == "" {
		return fmt.Errorf("provides.contract_file is not set in the registry")
	}
	contractPath := filepath.Join(*root, filepath.FromSlash(cfg.Provides.ContractFile))

	exps := breaking.LoadExpectationsFile(*expFile)
	if len(exps) == 0 {
		return fmt.Errorf("no expectations found in %s", *expFile)
	}
	if err := breaking.AnnotateConsumers(contractPath, *consumer, exps); err != nil {
		return err
	}
	fmt.Printf("Recorded consumer %s (%d expected endpoints)\n", *consumer, len(exps))
	return nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	root, _ := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := filepath.Join(*root, config.DefaultPath)
	if !config.Exists(path) {
		fmt.Println("Bridge is not initialized in this repository. Run: specbridge init")
		return nil
	}
	cfg, _, err := loadEnv(*root, "warn")
	if err != nil {
		return err
	}

	fmt.Printf("Role:    %s\n", cfg.Role)
	fmt.Printf("Repo ID: %s\n", cfg.RepoID)
	if cfg.Provides.ContractFile != "" {
		p := filepath.Join(*root, filepath.FromSlash(cfg.Provides.ContractFile))
		if c, err := contract.Load(p); err == nil {
			fmt.Printf("Provides: %s (%d endpoints, updated %s)\n",
				cfg.Provides.ContractFile, len(c.Endpoints), c.LastUpdated)
		} else {
			fmt.Printf("Provides: %s (not extracted yet)\n", cfg.Provides.ContractFile)
		}
	}

	names := cfg.DependencyNames()
	if len(names) == 0 {
		fmt.Println("Dependencies: none")
		return nil
	}
	fmt.Printf("Dependencies (%d):\n", len(names))
	for _, name := range names {
		dep := cfg.Dependencies[name]
		cache := filepath.Join(*root, filepath.FromSlash(dep.LocalCache))
		if c, err := contract.Load(cache); err == nil {
			fmt.Printf("  %s: %d endpoints cached, updated %s\n", name, len(c.Endpoints), c.LastUpdated)
		} else {
			fmt.Printf("  %s: not synced yet\n", name)
		}
	}
	return nil
}

// carryConsumers copies consumer annotations from prev onto matching
// endpoints of next, keyed by method and path.
func carryConsumers(prev, next *contract.Contract) {
	byKey := prev.EndpointsByKey()
	for i := range next.Endpoints {
		if old, ok := byKey[next.Endpoints[i].Key()]; ok && len(old.Consumers) > 0 {
			next.Endpoints[i].Consumers = append([]string(nil), old.Consumers...)
		}
	}
}

func sortedKeys(m map[string][]drift.Issue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
