package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-pages/extract"
	"github.com/aluiziolira/go-scrape-pages/models"
	"github.com/aluiziolira/go-scrape-pages/output"
	"github.com/aluiziolira/go-scrape-pages/parser"
	"github.com/aluiziolira/go-scrape-pages/scraper"
	"github.com/spf13/cobra"
)

type scrapeOptions struct {
	format    string
	file      string
	delay     float64
	textOnly  bool
	linksOnly bool
	quiet     bool
}

type textResult struct {
	Text string `json:"text"`
}

type linksResult struct {
	Links []string `json:"links"`
}

type pageResult struct {
	URL        string   `json:"url"`
	Text       string   `json:"text"`
	Links      []string `json:"links"`
	LinkCount  int      `json:"link_count"`
	Images     []string `json:"images"`
	ImageCount int      `json:"image_count"`
}

func newScrapeCmd(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}

	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrape a single URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.format, "output", "o", "json", "Output format: json, csv or txt")
	flags.StringVarP(&opts.file, "file", "f", "", "Output filename")
	flags.Float64VarP(&opts.delay, "delay", "d", 1.0, "Delay between requests in seconds")
	flags.BoolVar(&opts.textOnly, "text-only", false, "Extract only text content")
	flags.BoolVar(&opts.linksOnly, "links-only", false, "Extract only links")
	flags.BoolVar(&opts.quiet, "quiet", false, "Suppress banner and progress output")
	return cmd
}

func runScrape(cmd *cobra.Command, root *rootOptions, opts *scrapeOptions, rawURL string) error {
	out := cmd.OutOrStdout()
	if opts.quiet {
		out = io.Discard
	}

	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if format != output.FormatJSON && format != output.FormatCSV && format != output.FormatText {
		return fmt.Errorf("unsupported output format %q for a single url", opts.format)
	}
	if opts.delay < 0 {
		return fmt.Errorf("delay cannot be negative: %v", opts.delay)
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("delay") {
		cfg.Delay = secondsToDuration(opts.delay)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	printBanner(out)

	fetcher, err := scraper.NewFetcher(cfg, nil, scraper.WithRequestDelay(cfg.Delay))
	if err != nil {
		return err
	}
	manager, err := output.NewManager(cfg.OutputDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Scraping %s...\n", rawURL)
	page, err := fetcher.Fetch(cmd.Context(), rawURL)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Failed to scrape URL")
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	doc, err := parser.HTMLParser{}.Parse(page.Body, page.ContentType)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Failed to parse HTML")
		return err
	}

	path, err := saveSingle(manager, extract.New(), doc, rawURL, format, opts)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	fmt.Fprintf(out, "Data saved to %s\n", path)
	fmt.Fprintln(out, "Scraping completed!")
	return nil
}

func scrapeMode(opts *scrapeOptions) models.ExtractionMode {
	switch {
	case opts.textOnly:
		return models.ModeTextOnly
	case opts.linksOnly:
		return models.ModeLinksOnly
	default:
		return models.ModeAll
	}
}

func saveSingle(m *output.Manager, ex *extract.Extractor, doc parser.Document, rawURL string, format output.Format, opts *scrapeOptions) (string, error) {
	switch scrapeMode(opts) {
	case models.ModeTextOnly:
		text := ex.Text(doc)
		switch format {
		case output.FormatText:
			return m.SaveText(text, opts.file)
		case output.FormatCSV:
			return m.SaveCSV([]any{output.NewRow("text", text)}, opts.file, nil)
		default:
			return m.SaveJSON(textResult{Text: text}, opts.file)
		}

	case models.ModeLinksOnly:
		links := ex.Links(doc, rawURL)
		switch format {
		case output.FormatText:
			return m.SaveText(links, opts.file)
		case output.FormatCSV:
			rows := make([]any, 0, len(links))
			for _, link := range links {
				rows = append(rows, output.NewRow("url", link))
			}
			return m.SaveCSV(rows, opts.file, []string{"url"})
		default:
			return m.SaveJSON(linksResult{Links: links}, opts.file)
		}

	default:
		links := ex.Links(doc, rawURL)
		images := ex.Images(doc, rawURL)
		result := pageResult{
			URL:        rawURL,
			Text:       ex.Text(doc),
			Links:      links,
			LinkCount:  len(links),
			Images:     images,
			ImageCount: len(images),
		}
		switch format {
		case output.FormatText:
			return m.SaveText(result.String(), opts.file)
		case output.FormatCSV:
			return m.SaveCSV([]any{result.Row()}, opts.file, nil)
		default:
			return m.SaveJSON(result, opts.file)
		}
	}
}

func (p pageResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n\nText:\n%s\n\n", p.URL, p.Text)
	fmt.Fprintf(&b, "Links (%d):\n%s", p.LinkCount, strings.Join(p.Links, "\n"))
	if p.ImageCount > 0 {
		fmt.Fprintf(&b, "\n\nImages (%d):\n%s", p.ImageCount, strings.Join(p.Images, "\n"))
	}
	return b.String()
}

func (p pageResult) Row() *output.Row {
	return output.NewRow(
		"url", p.URL,
		"text", p.Text,
		"links", strings.Join(p.Links, " "),
		"link_count", strconv.Itoa(p.LinkCount),
		"images", strings.Join(p.Images, " "),
		"image_count", strconv.Itoa(p.ImageCount),
	)
}
