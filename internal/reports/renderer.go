package reports

import (
	"fmt"
	"strconv"
	"time"

	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/internal/checklists"
	checklistrepo "mantaqc_backend/internal/checklists/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Sheet names. Russian-facing, matching the product UI.
const (
	sheetCover     = "Сводный отчёт"
	sheetAnalytics = "Аналитика"
	sheetIssues    = "Проблемы"
	sheetChecks    = "Обходы"
)

const headerFillColor = "173F5F"

// Renderer builds the xlsx artifact for a check instance.
type Renderer struct{}

// NewRenderer creates a report renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// renderInput gathers everything a workbook is rendered from.
type renderInput struct {
	check        checklistrepo.CheckInstance
	schema       checklists.Schema
	answers      checklists.Answers
	comments     map[string]string
	analytics    *Analytics
	templateName string
}

// Render produces the workbook bytes. The issues sheet is present only
// when the analytics snapshot carries alerts.
func (r *Renderer) Render(in renderInput) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := r.coverSheet(f, in); err != nil {
		return nil, err
	}
	if err := r.analyticsSheet(f, in); err != nil {
		return nil, err
	}
	if len(in.analytics.Alerts) > 0 {
		if err := r.issuesSheet(f, in); err != nil {
			return nil, err
		}
	}
	if err := r.checksSheet(f, in); err != nil {
		return nil, err
	}

	// The default sheet is replaced by the cover sheet.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	if idx, err := f.GetSheetIndex(sheetCover); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFillColor}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
}

func (r *Renderer) titleStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
}

func (r *Renderer) boldStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
}

func (r *Renderer) coverSheet(f *excelize.File, in renderInput) error {
	if _, err := f.NewSheet(sheetCover); err != nil {
		return err
	}
	title, err := r.titleStyle(f)
	if err != nil {
		return err
	}
	bold, err := r.boldStyle(f)
	if err != nil {
		return err
	}

	f.SetCellValue(sheetCover, "A1", "MantaQC — Сводный отчёт")
	f.SetCellStyle(sheetCover, "A1", "A1", title)
	f.MergeCell(sheetCover, "A1", "D1")

	meta := [][2]string{
		{"ID обхода", in.check.ID.String()},
		{"Шаблон", in.templateName},
		{"Версия шаблона", strconv.Itoa(in.check.TemplateVersion)},
		{"Инспектор", uuidPtrOrDash(in.check.InspectorID)},
		{"Статус", string(in.check.Status)},
		{"Начало", timeOrDash(in.check.StartedAt)},
		{"Окончание", timeOrDash(in.check.FinishedAt)},
		{"Подразделение", strPtrOrDash(in.check.DepartmentID)},
	}
	row := 3
	for _, m := range meta {
		labelCell := fmt.Sprintf("A%d", row)
		f.SetCellValue(sheetCover, labelCell, m[0])
		f.SetCellStyle(sheetCover, labelCell, labelCell, bold)
		f.SetCellValue(sheetCover, fmt.Sprintf("B%d", row), m[1])
		row++
	}

	row++
	subtitleCell := fmt.Sprintf("A%d", row)
	f.SetCellValue(sheetCover, subtitleCell, "Основные показатели")
	subtitle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}})
	if err != nil {
		return err
	}
	f.SetCellStyle(sheetCover, subtitleCell, subtitleCell, subtitle)
	row++

	kpis := []struct {
		label string
		value any
	}{
		{"Средний балл", in.analytics.Score},
		{"Балл бригады", brigadeScoreOrDash(in.analytics)},
		{"Замечания", in.analytics.RemarkCount},
		{"Критические нарушения", len(in.analytics.CriticalViolations)},
	}
	for _, kpi := range kpis {
		labelCell := fmt.Sprintf("A%d", row)
		f.SetCellValue(sheetCover, labelCell, kpi.label)
		f.SetCellStyle(sheetCover, labelCell, labelCell, bold)
		f.SetCellValue(sheetCover, fmt.Sprintf("B%d", row), kpi.value)
		row++
	}

	return r.sizeColumns(f, sheetCover)
}

func (r *Renderer) analyticsSheet(f *excelize.File, in renderInput) error {
	if _, err := f.NewSheet(sheetAnalytics); err != nil {
		return err
	}
	title, err := r.titleStyle(f)
	if err != nil {
		return err
	}
	header, err := r.headerStyle(f)
	if err != nil {
		return err
	}

	f.SetCellValue(sheetAnalytics, "A1", "Аналитика по культуре производства")
	f.SetCellStyle(sheetAnalytics, "A1", "A1", title)
	f.MergeCell(sheetAnalytics, "A1", "D1")

	headers := []string{"Бригада", "Дата", "Балл", "Общий балл"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(sheetAnalytics, cell, h)
	}
	f.SetCellStyle(sheetAnalytics, "A3", "D3", header)

	row := 4
	if bs := in.analytics.BrigadeScore; bs != nil {
		f.SetCellValue(sheetAnalytics, fmt.Sprintf("A%d", row), bs.BrigadeID.String())
		f.SetCellValue(sheetAnalytics, fmt.Sprintf("B%d", row), bs.ScoreDate.Format("2006-01-02"))
		f.SetCellValue(sheetAnalytics, fmt.Sprintf("C%d", row), bs.Score)
		f.SetCellValue(sheetAnalytics, fmt.Sprintf("D%d", row), bs.Details.Total)
		row++

		if err := f.AddChart(sheetAnalytics, "F3", &excelize.Chart{
			Type:  excelize.Line,
			Title: []excelize.RichTextRun{{Text: "Динамика балла бригады"}},
			Series: []excelize.ChartSeries{{
				Name:       sheetAnalytics + "!$C$3",
				Categories: fmt.Sprintf("%s!$B$4:$B$%d", sheetAnalytics, row-1),
				Values:     fmt.Sprintf("%s!$C$4:$C$%d", sheetAnalytics, row-1),
			}},
		}); err != nil {
			return err
		}
	}

	return r.sizeColumns(f, sheetAnalytics)
}

func (r *Renderer) issuesSheet(f *excelize.File, in renderInput) error {
	if _, err := f.NewSheet(sheetIssues); err != nil {
		return err
	}
	title, err := r.titleStyle(f)
	if err != nil {
		return err
	}
	header, err := r.headerStyle(f)
	if err != nil {
		return err
	}

	f.SetCellValue(sheetIssues, "A1", "Выявленные проблемы")
	f.SetCellStyle(sheetIssues, "A1", "A1", title)
	f.MergeCell(sheetIssues, "A1", "F1")

	headers := []string{"Серьёзность", "Категория", "Сообщение", "ID обхода", "Бригада", "Статус тикета"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(sheetIssues, cell, h)
	}
	f.SetCellStyle(sheetIssues, "A3", "F3", header)

	row := 4
	for _, alert := range in.analytics.Alerts {
		ticketStatus := "Ожидает"
		if alert.Metadata != nil {
			if _, ok := alert.Metadata[alerts.MetadataTicketID]; ok {
				ticketStatus = "Создан"
			}
		}
		f.SetCellValue(sheetIssues, fmt.Sprintf("A%d", row), string(alert.Severity))
		f.SetCellValue(sheetIssues, fmt.Sprintf("B%d", row), alert.Category)
		f.SetCellValue(sheetIssues, fmt.Sprintf("C%d", row), alert.Message)
		f.SetCellValue(sheetIssues, fmt.Sprintf("D%d", row), uuidPtrOrDash(alert.CheckInstanceID))
		f.SetCellValue(sheetIssues, fmt.Sprintf("E%d", row), uuidPtrOrDash(alert.BrigadeID))
		f.SetCellValue(sheetIssues, fmt.Sprintf("F%d", row), ticketStatus)
		row++
	}

	return r.sizeColumns(f, sheetIssues)
}

func (r *Renderer) checksSheet(f *excelize.File, in renderInput) error {
	if _, err := f.NewSheet(sheetChecks); err != nil {
		return err
	}
	title, err := r.titleStyle(f)
	if err != nil {
		return err
	}
	header, err := r.headerStyle(f)
	if err != nil {
		return err
	}

	f.SetCellValue(sheetChecks, "A1", "Детали обхода")
	f.SetCellStyle(sheetChecks, "A1", "A1", title)
	f.MergeCell(sheetChecks, "A1", "D1")

	headers := []string{"Секция", "Вопрос", "Ответ", "Комментарий"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(sheetChecks, cell, h)
	}
	f.SetCellStyle(sheetChecks, "A3", "D3", header)

	row := 4
	for _, section := range in.schema.Sections {
		sectionTitle := section.Title
		if sectionTitle == "" {
			sectionTitle = "Без названия"
		}
		for _, q := range section.Questions {
			text := q.Text
			if text == "" {
				text = q.ID
			}
			answer := "—"
			if v, ok := in.answers[q.ID]; ok && v != nil {
				answer = fmt.Sprint(v)
			}
			comment := in.comments[q.ID]
			if comment == "" {
				comment = in.comments["summary"]
			}
			if comment == "" {
				comment = "—"
			}

			f.SetCellValue(sheetChecks, fmt.Sprintf("A%d", row), sectionTitle)
			f.SetCellValue(sheetChecks, fmt.Sprintf("B%d", row), text)
			f.SetCellValue(sheetChecks, fmt.Sprintf("C%d", row), answer)
			f.SetCellValue(sheetChecks, fmt.Sprintf("D%d", row), comment)
			row++
		}
	}

	return r.sizeColumns(f, sheetChecks)
}

// sizeColumns widens columns to fit their longest value, capped so a single
// verbose comment cannot blow up the layout.
func (r *Renderer) sizeColumns(f *excelize.File, sheet string) error {
	cols, err := f.GetCols(sheet)
	if err != nil {
		return err
	}
	for i, col := range cols {
		maxLen := 0
		for _, v := range col {
			if len([]rune(v)) > maxLen {
				maxLen = len([]rune(v))
			}
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(maxLen + 4)
		if width > 60 {
			width = 60
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}

func uuidPtrOrDash(id *uuid.UUID) string {
	if id == nil {
		return "—"
	}
	return id.String()
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return t.UTC().Format(time.RFC3339)
}

func strPtrOrDash(s *string) string {
	if s == nil || *s == "" {
		return "—"
	}
	return *s
}

func brigadeScoreOrDash(a *Analytics) any {
	if a.BrigadeScore == nil {
		return "—"
	}
	return a.BrigadeScore.Score
}
