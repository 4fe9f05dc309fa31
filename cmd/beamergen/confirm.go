package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"beamerscore/pkg/contract"
)

// errNoAnswer: 交互输入提前结束。
var errNoAnswer = errors.New("confirmation aborted: no more input")

// prompter 逐行读取交互应答。
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(r io.Reader, w io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(r), out: w}
}

// ask 打印提示并返回去除首尾空白的一行应答。
func (p *prompter) ask(prompt string) (string, error) {
	fprintf(p.out, "%s", prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", contract.ErrInvalidInput, errNoAnswer)
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// confirmPaths 交互确认输入/输出：
//   - 输入不存在时反复询问；
//   - 输出已存在时确认覆盖（默认是），拒绝与输入同名；
//   - 打印摘要后最终确认，否定则从头再来。
func confirmPaths(p *prompter, input, output string) (string, string, error) {
	var err error
	for {
		for !isFile(input) {
			fprintf(p.out, "Input filename '%s' does not exist\n", input)
			if input, err = p.ask("Please enter input file name:"); err != nil {
				return "", "", err
			}
		}
		for exists(output) {
			ans, err := p.ask(fmt.Sprintf("Output filename '%s' exists.\n Overwrite? [y]/n >", output))
			if err != nil {
				return "", "", err
			}
			if ans != "n" {
				if !samePath(input, output) {
					break
				}
				fprintf(p.out, "Same name for input and output file\n")
			}
			if output, err = p.ask("Please enter output file name:"); err != nil {
				return "", "", err
			}
		}

		fprintf(p.out, "\nInfile = %s\nOutfile = %s", input, output)
		if exists(output) {
			fprintf(p.out, " [**Overwrite**]\n")
		} else {
			fprintf(p.out, "\n")
		}
		ans, err := p.ask("Confirm? [y]/n >")
		if err != nil {
			return "", "", err
		}
		if ans != "n" {
			return input, output, nil
		}
	}
}

func samePath(a, b string) bool { return contract.NormalizeDocPath(a) == contract.NormalizeDocPath(b) }
