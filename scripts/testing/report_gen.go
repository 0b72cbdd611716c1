package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const modulePath = "github.com/eventhorizon/horizon/"

// TestMetadata holds info parsed from Go source comments
type TestMetadata struct {
	Name     string `json:"name"`
	Purpose  string `json:"purpose,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Security string `json:"security,omitempty"`
	Expected string `json:"expected,omitempty"`
	Package  string `json:"package"`
	Category string `json:"category"`
}

// GoTestEvent represents a single event from 'go test -json'
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// FinalTestResult is the merged result for a single test
type FinalTestResult struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Elapsed     float64      `json:"elapsed_seconds"`
	Package     string       `json:"package"`
	Failure     string       `json:"failure_reason,omitempty"`
	Annotations TestMetadata `json:"annotations"`
}

// ReportSummary holds top-level stats
type ReportSummary struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Total       int               `json:"total"`
	Passed      int               `json:"passed"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	Results     []FinalTestResult `json:"results"`
}

func main() {
	inputPath := flag.String("input", "", "Path to go test -json output file")
	outputJSON := flag.String("out-json", "", "Path for output JSON report")
	outputMD := flag.String("out-md", "", "Path for output Markdown report")
	title := flag.String("title", "Credential Service Test Report", "Report title")
	category := flag.String("category", "", "Only include tests of this category")
	flag.Parse()

	if *inputPath == "" || *outputJSON == "" || *outputMD == "" {
		fmt.Println("Usage: report_gen -input <json_file> -out-json <out_json> -out-md <out_md>")
		os.Exit(1)
	}

	results, err := parseTestOutput(*inputPath, scanMetadata("."))
	if err != nil {
		fmt.Fprintf(os.Stderr, "report_gen: %v\n", err)
		os.Exit(1)
	}

	if *category != "" {
		filtered := results[:0]
		for _, res := range results {
			if strings.EqualFold(res.Annotations.Category, *category) {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	summary := generateSummary(results)
	if err := saveJSON(summary, *outputJSON); err != nil {
		fmt.Fprintf(os.Stderr, "report_gen: %v\n", err)
		os.Exit(1)
	}
	if err := saveMarkdown(summary, *outputMD, *title); err != nil {
		fmt.Fprintf(os.Stderr, "report_gen: %v\n", err)
		os.Exit(1)
	}

	// Fail the CI step when any test failed
	if summary.Failed > 0 {
		fmt.Printf("Test Reporting: %d tests failed.\n", summary.Failed)
		os.Exit(1)
	}
}

// scanMetadata collects the TestPurpose annotation block of every test function under root
func scanMetadata(root string) map[string]TestMetadata {
	metadataMap := make(map[string]TestMetadata)
	fset := token.NewFileSet()

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && (d.Name() == "_examples" || d.Name() == ".git" || d.Name() == "vendor") {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}

		pkgPath := modulePath + filepath.ToSlash(filepath.Dir(path))
		if strings.HasSuffix(node.Name.Name, "_test") {
			pkgPath += "_test"
		}

		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") || fn.Name.Name == "TestMain" {
				continue
			}

			meta := TestMetadata{
				Name:     fn.Name.Name,
				Package:  pkgPath,
				Category: determineCategory(pkgPath),
			}
			if fn.Doc != nil {
				for _, line := range fn.Doc.List {
					text := strings.TrimSpace(strings.TrimPrefix(line.Text, "//"))
					key, value, found := strings.Cut(text, ":")
					if !found {
						continue
					}
					value = strings.TrimSpace(value)
					switch key {
					case "TestPurpose":
						meta.Purpose = value
					case "Scope":
						meta.Scope = value
					case "Security":
						meta.Security = value
					case "Expected":
						meta.Expected = value
					}
				}
			}
			metadataMap[pkgPath+"."+fn.Name.Name] = meta
		}
		return nil
	})

	return metadataMap
}

func determineCategory(pkgPath string) string {
	rel := strings.TrimSuffix(strings.TrimPrefix(pkgPath, modulePath), "_test")
	switch {
	case strings.HasPrefix(rel, "internal/keys"), strings.HasPrefix(rel, "internal/rotation"):
		return "Key Lifecycle"
	case strings.HasPrefix(rel, "internal/token"), strings.HasPrefix(rel, "internal/revocation"):
		return "Tokens"
	case strings.HasPrefix(rel, "internal/challenge"):
		return "Challenge"
	case strings.HasPrefix(rel, "internal/transport/http"):
		return "API"
	case strings.HasPrefix(rel, "internal/directory"), strings.HasPrefix(rel, "internal/store"):
		return "Directory"
	case strings.HasPrefix(rel, "internal/audit"), strings.HasPrefix(rel, "internal/observability"):
		return "Observability"
	default:
		return "Other"
	}
}

func parseTestOutput(path string, meta map[string]TestMetadata) ([]FinalTestResult, error) {
	testStates := make(map[string]*FinalTestResult)
	for key, m := range meta {
		testStates[key] = &FinalTestResult{
			Name:        m.Name,
			Package:     m.Package,
			Status:      "not run",
			Annotations: m,
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open test output: %w", err)
	}
	defer file.Close()

	output := make(map[string]*strings.Builder)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event GoTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil || event.Test == "" {
			continue
		}

		key := event.Package + "." + event.Test
		res, ok := testStates[key]
		if !ok {
			parent, _, isSubtest := strings.Cut(event.Test, "/")
			parentMeta, found := meta[event.Package+"."+parent]
			if !isSubtest || !found {
				continue
			}
			sub := parentMeta
			sub.Name = event.Test
			res = &FinalTestResult{Name: event.Test, Package: event.Package, Status: "not run", Annotations: sub}
			testStates[key] = res
		}

		switch event.Action {
		case "output":
			if output[key] == nil {
				output[key] = &strings.Builder{}
			}
			output[key].WriteString(event.Output)
		case "pass", "fail", "skip":
			res.Status = event.Action
			res.Elapsed = event.Elapsed
			if event.Action == "fail" && output[key] != nil {
				res.Failure = strings.TrimSpace(output[key].String())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test output: %w", err)
	}

	results := make([]FinalTestResult, 0, len(testStates))
	for _, res := range testStates {
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Package != results[j].Package {
			return results[i].Package < results[j].Package
		}
		return results[i].Name < results[j].Name
	})
	return results, nil
}

func generateSummary(results []FinalTestResult) ReportSummary {
	summary := ReportSummary{GeneratedAt: time.Now().UTC(), Results: results, Total: len(results)}
	for _, res := range results {
		switch res.Status {
		case "pass":
			summary.Passed++
		case "fail":
			summary.Failed++
		case "skip":
			summary.Skipped++
		}
	}
	return summary
}

func saveJSON(summary ReportSummary, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func saveMarkdown(summary ReportSummary, path, title string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Generated at %s\n\n", summary.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "| Total | Passed | Failed | Skipped |\n|---|---|---|---|\n| %d | %d | %d | %d |\n\n",
		summary.Total, summary.Passed, summary.Failed, summary.Skipped)

	byCategory := make(map[string][]FinalTestResult)
	categories := []string{}
	for _, res := range summary.Results {
		c := res.Annotations.Category
		if _, ok := byCategory[c]; !ok {
			categories = append(categories, c)
		}
		byCategory[c] = append(byCategory[c], res)
	}
	sort.Strings(categories)

	for _, c := range categories {
		fmt.Fprintf(&b, "## %s\n\n| Test | Status | Purpose | Expected |\n|---|---|---|---|\n", c)
		for _, res := range byCategory[c] {
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n",
				res.Name, res.Status, escapeCell(res.Annotations.Purpose), escapeCell(res.Annotations.Expected))
		}
		b.WriteString("\n")
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
