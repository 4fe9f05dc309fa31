package xlsx

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"beamerscore/internal/ranking"
	"beamerscore/pkg/contract"
)

// 列序：no, stuid, engname, addr, score, chname。
const (
	colNo = iota
	colStudentID
	colEnglishName
	colAddress
	colScore
	colName
	numCols
)

// Options 对应 [Data] 分区。
type Options struct {
	Filename   string `ini:"filename" yaml:"filename"`
	ScoreRange string `ini:"score_range" yaml:"score_range"` // 例如 E2:E101；每行取首列
	Size       int    `ini:"size" yaml:"size"`               // 参与排名总人数
	Sheet      string `ini:"sheet" yaml:"sheet"`             // 为空使用活动工作表
}

// Source 读取 xlsx 成绩表。
type Source struct {
	opts Options
}

// New 校验选项并返回 Source；文件在 Iterate 时才打开。
func New(opts Options) (*Source, error) {
	if strings.TrimSpace(opts.Filename) == "" {
		return nil, fmt.Errorf("%w: xlsx filename is empty", contract.ErrConfig)
	}
	if _, _, err := parseRange(opts.ScoreRange); err != nil {
		return nil, err
	}
	if opts.Size < 0 {
		return nil, fmt.Errorf("%w: size must be >= 0", contract.ErrConfig)
	}
	return &Source{opts: opts}, nil
}

var _ contract.RecordSource = (*Source)(nil)

// Iterate 先读分数区计算名次，再逐行回调 Record（跳过表头与整行为空的行）。
func (s *Source) Iterate(ctx context.Context, yield func(contract.Record) error) error {
	f, err := excelize.OpenFile(s.opts.Filename)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", contract.ErrSourceNotFound, s.opts.Filename, err)
	}
	defer f.Close()

	sheet := s.opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	scores, err := readScores(f, sheet, s.opts.ScoreRange)
	if err != nil {
		return err
	}
	size := s.opts.Size
	if size == 0 {
		size = len(scores)
	}
	ranks, err := ranking.MaxTies(scores, size)
	if err != nil {
		return err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("xlsx: rows %s: %w", sheet, err)
	}
	defer rows.Close()

	for i := 0; rows.Next(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("xlsx: row %d: %w", i+1, err)
		}
		if i == 0 || blank(cols) { // 表头
			continue
		}
		// 第 i 个数据行对应分数区第 i 个名次
		if i-1 >= len(ranks) {
			return fmt.Errorf("%w: row %d beyond score range %s", contract.ErrInvalidInput, i+1, s.opts.ScoreRange)
		}
		rec, err := toRecord(cols, i+1)
		if err != nil {
			return err
		}
		rec.Rank = ranks[i-1]
		if err := yield(rec); err != nil {
			return err
		}
	}
	return rows.Error()
}

func toRecord(cols []string, row int) (contract.Record, error) {
	for len(cols) < numCols {
		cols = append(cols, "")
	}
	no, err := parseNo(cols[colNo])
	if err != nil {
		return contract.Record{}, fmt.Errorf("%w: row %d: no %q", contract.ErrInvalidInput, row, cols[colNo])
	}
	score, err := parseScore(cols[colScore])
	if err != nil {
		return contract.Record{}, fmt.Errorf("%w: row %d: score %q", contract.ErrInvalidInput, row, cols[colScore])
	}
	return contract.Record{
		No:          no,
		StudentID:   strings.TrimSpace(cols[colStudentID]),
		EnglishName: strings.TrimSpace(cols[colEnglishName]),
		Address:     strings.TrimSpace(cols[colAddress]),
		Score:       score,
		Name:        strings.TrimSpace(cols[colName]),
	}, nil
}

// readScores 按行读取分数区首列；空单元格记 0。
func readScores(f *excelize.File, sheet, rng string) ([]float64, error) {
	from, to, err := parseRange(rng)
	if err != nil {
		return nil, err
	}
	col, r0, _ := excelize.CellNameToCoordinates(from)
	_, r1, _ := excelize.CellNameToCoordinates(to)
	out := make([]float64, 0, r1-r0+1)
	for r := r0; r <= r1; r++ {
		cell, err := excelize.CoordinatesToCellName(col, r)
		if err != nil {
			return nil, err
		}
		v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("xlsx: cell %s: %w", cell, err)
		}
		sc, err := parseScore(v)
		if err != nil {
			return nil, fmt.Errorf("%w: score cell %s: %q", contract.ErrInvalidInput, cell, v)
		}
		out = append(out, sc)
	}
	return out, nil
}

// parseRange 解析 "E2:E101"；单个单元格视为一行的区间。
func parseRange(rng string) (string, string, error) {
	rng = strings.ToUpper(strings.TrimSpace(rng))
	from, to, ok := strings.Cut(rng, ":")
	if !ok {
		to = from
	}
	_, r0, err0 := excelize.CellNameToCoordinates(from)
	_, r1, err1 := excelize.CellNameToCoordinates(to)
	if err0 != nil || err1 != nil || r1 < r0 {
		return "", "", fmt.Errorf("%w: score_range %q", contract.ErrConfig, rng)
	}
	return from, to, nil
}

func parseScore(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

// parseNo 接受整数或整数值浮点（"3" / "3.0"）。
func parseNo(v string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f != math.Trunc(f) {
		return 0, contract.ErrInvalidInput
	}
	return int(f), nil
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
