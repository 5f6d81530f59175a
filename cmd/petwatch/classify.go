package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/taxonomy"
)

func newClassifyCmd(gf *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify [書名...]",
		Short: "用目前的分類表為書名分類（不抓取、不寫快照）",
		Long: `classify 對參數中的書名逐一分類；沒有參數時從 stdin 每行讀一個書名。
可用來調整 taxonomy 檔案時快速檢查效果。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eff, err := loadConfig(cmd, gf)
			if err != nil {
				return err
			}
			cls, err := loadClassifier(eff)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}

			titles := args
			if len(titles) == 0 {
				titles, err = readLines(cmd.InOrStdin())
				if err != nil {
					return &exitError{code: exitFatal, err: fmt.Errorf("讀取 stdin 失敗：%w", err)}
				}
			}
			if len(titles) == 0 {
				return &exitError{code: exitUsage, err: fmt.Errorf("沒有要分類的書名")}
			}

			recs := make([]domain.Record, 0, len(titles))
			for _, t := range titles {
				recs = append(recs, domain.Record{Title: t})
			}
			recs = cls.Apply(recs)

			if asJSON {
				return writeClassifyJSON(cmd.OutOrStdout(), recs)
			}
			renderClassify(cmd.OutOrStdout(), cls, recs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 輸出")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			out = append(out, s)
		}
	}
	return out, sc.Err()
}

func renderClassify(w io.Writer, cls taxonomy.Classifier, recs []domain.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"書名", "動物種類", "主題", "組合分類"})
	for _, r := range recs {
		t.AppendRow(table.Row{
			truncate(r.Title, 40),
			strings.Join(r.AnimalTypes, "、"),
			strings.Join(r.Topics, "、"),
			r.CombinedCategoryString(),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("共 %d 本", len(recs)), breakdownText(cls.AnimalBreakdown(recs)), breakdownText(cls.TopicBreakdown(recs)), ""})
	t.Render()
}

func breakdownText(in []domain.LabelCount) string {
	parts := make([]string, 0, len(in))
	for _, lc := range in {
		parts = append(parts, fmt.Sprintf("%s %d", lc.Label, lc.Count))
	}
	return strings.Join(parts, " / ")
}

type classifyItem struct {
	Title    string   `json:"title"`
	Animals  []string `json:"animalTypes"`
	Topics   []string `json:"topics"`
	Combined []string `json:"combined"`
}

func writeClassifyJSON(w io.Writer, recs []domain.Record) error {
	items := make([]classifyItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, classifyItem{
			Title:    r.Title,
			Animals:  r.AnimalTypes,
			Topics:   r.Topics,
			Combined: r.CombinedCategory(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
