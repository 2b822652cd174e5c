package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/lawcheck/internal/core/compliance"
	"github.com/jinford/lawcheck/internal/core/compliance/document"
)

// Checker は適合性判定を行う
type Checker interface {
	Check(ctx context.Context, req compliance.Request) ([]compliance.Result, error)
}

// CheckAction は文書と法令ファイルを比較し、結果をJSONで標準出力に書き出すコマンドのアクション
func CheckAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return runCheck(ctx, appCtx.Container.ComplianceService, checkParams{
		documentPath: cmd.String("document"),
		lawSpecs:     cmd.StringSlice("law"),
		selected:     cmd.StringSlice("select"),
	}, os.Stdout)
}

type checkParams struct {
	documentPath string
	lawSpecs     []string
	selected     []string
}

func runCheck(ctx context.Context, checker Checker, params checkParams, w io.Writer) error {
	text, err := readDocument(params.documentPath)
	if err != nil {
		return err
	}

	laws, order, err := loadLaws(params.lawSpecs)
	if err != nil {
		return err
	}

	selected := params.selected
	if len(selected) == 0 {
		selected = order
	}

	results, err := checker.Check(ctx, compliance.Request{
		DocumentText: text,
		Laws:         laws,
		LawIDs:       selected,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(map[string][]compliance.Result{"result": results})
}

func readDocument(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("文書の読み込みに失敗: %w", err)
	}
	text, _, err := document.Decode(content)
	if err != nil {
		return "", fmt.Errorf("文書を処理できません (%s): %w", path, err)
	}
	return text, nil
}

// loadLaws は "id=path" または "path" 形式の指定から法令を読み込む
// id を省略した場合は拡張子を除いたファイル名を id とする
func loadLaws(specs []string) (map[string]string, []string, error) {
	laws := make(map[string]string, len(specs))
	order := make([]string, 0, len(specs))

	for _, spec := range specs {
		id, path, ok := strings.Cut(spec, "=")
		if !ok {
			path = spec
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		id = strings.TrimSpace(id)
		if id == "" || path == "" {
			return nil, nil, fmt.Errorf("法令の指定が不正です: %q", spec)
		}
		if _, dup := laws[id]; dup {
			return nil, nil, fmt.Errorf("法令IDが重複しています: %s", id)
		}

		text, err := readDocument(path)
		if err != nil {
			return nil, nil, err
		}
		laws[id] = text
		order = append(order, id)
	}

	return laws, order, nil
}
