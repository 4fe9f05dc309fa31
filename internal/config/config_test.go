package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"

	"beamerscore/internal/pipeline"
	"beamerscore/pkg/contract"
	wfs "beamerscore/plugins/writer/filesystem"
)

const sampleINI = `[Debug]
debugmode = False
offlinemode = True
offlinedumpfile = dump.txt
offlineerrorpercentile = 0
dumpaddress = dump@example.com
trials = 2

[Sending]
starting_no = 3
addr_char = @stu
continue_unsent = True
waitsec = 0.5

[Mail]
sender = 教务处
subject = 成绩-
contents = <p>{name}: {score}</p>
	<p>rank {ranking} # top 100%%</p>

[Data]
filename = scores.xlsx
score_range = E2:E5
size = 4

[Server]
domain = example.com
`

func loadSample(t *testing.T, raw string) *ScoreFile {
	t.Helper()
	sf, err := LoadScoreINI("", []byte(raw))
	require.NoError(t, err)
	return sf
}

// TestScoreSettings 多行值、行内 # 与 %% 转义、默认值保留。
func TestScoreSettings(t *testing.T) {
	s, err := loadSample(t, sampleINI).Settings()
	require.NoError(t, err)

	assert.Equal(t, 3, s.Sending.StartingNo)
	assert.Equal(t, "@stu", s.Sending.AddrChar)
	assert.InDelta(t, 0.5, s.Sending.WaitSec, 1e-9)
	assert.True(t, s.Sending.ContinueUnsent)
	assert.Equal(t, 2, s.Debug.Trials)
	assert.Contains(t, s.Mail.Contents, "<p>{name}: {score}</p>")
	assert.Contains(t, s.Mail.Contents, "\n")
	assert.Contains(t, s.Mail.Contents, "# top 100%")
	assert.NotContains(t, s.Mail.Contents, "%%")
	// 未出现的键保留默认值
	assert.False(t, s.Mail.Sanitize, "模板默认原样发送")
	assert.True(t, s.Mail.PlainText)
	assert.Equal(t, "info", s.Logging.Level)

	assert.True(t, s.ResumePolicy())
	assert.Equal(t, "offline", s.BackendName())
}

func TestScoreEnvOverlay(t *testing.T) {
	sf := loadSample(t, sampleINI)
	ScoreEnvOverlay(sf, []string{
		"SCOREREPORT_SENDING__STARTING_NO=7",
		"SCOREREPORT_DEBUG__DEBUGMODE=true",
		"SCOREREPORT_UNKNOWN__X=1",
		"SCOREREPORT_MAILBOX=box",
		"OTHER=1",
	})
	s, err := sf.Settings()
	require.NoError(t, err)
	assert.Equal(t, 7, s.Sending.StartingNo)
	assert.True(t, s.Debug.DebugMode)
	assert.False(t, s.ResumePolicy(), "调试模式不持久化断点")
}

func TestValidateScore(t *testing.T) {
	sf := loadSample(t, sampleINI)
	s, err := sf.Settings()
	require.NoError(t, err)
	require.NoError(t, ValidateScore(sf, s))

	noData := loadSample(t, strings.Replace(sampleINI, "size = 4\n", "", 1))
	s2, err := noData.Settings()
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateScore(noData, s2), contract.ErrConfig)

	bad := s
	bad.Server.Backend = "carrier-pigeon"
	assert.ErrorIs(t, ValidateScore(sf, bad), contract.ErrConfig)

	bad = s
	bad.Debug.DebugMode = true
	bad.Debug.DumpAddress = " "
	assert.ErrorIs(t, ValidateScore(sf, bad), contract.ErrConfig)
}

func TestLoadScoreINIErrors(t *testing.T) {
	_, err := LoadScoreINI("", nil)
	assert.ErrorIs(t, err, contract.ErrConfig)
	_, err = LoadScoreINI(filepath.Join(t.TempDir(), "missing.ini"), nil)
	assert.ErrorIs(t, err, contract.ErrConfig)
}

// TestResumeStoreRoundTrip 只改写 starting_no；ENV 覆盖不回写。
func TestResumeStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailsend.ini")
	require.NoError(t, os.WriteFile(path, []byte(sampleINI), 0o644))

	sf, err := LoadScoreINI(path, nil)
	require.NoError(t, err)
	ScoreEnvOverlay(sf, []string{"SCOREREPORT_SENDING__ADDR_CHAR=zzz"})

	store := &INIResumeStore{Path: path, Writer: wfs.New(nil)}
	require.NoError(t, store.SaveResume(9))

	f, err := ini.LoadSources(iniOptions, path)
	require.NoError(t, err)
	assert.Equal(t, 9, f.Section("Sending").Key("starting_no").MustInt(0))
	assert.Equal(t, "@stu", f.Section("Sending").Key("addr_char").String())
	assert.Equal(t, "scores.xlsx", f.Section("Data").Key("filename").String())
	assert.Contains(t, f.Section("Mail").Key("contents").String(), "{ranking}")

	// 再次加载后仍可得到完整设置
	again, err := LoadScoreINI(path, nil)
	require.NoError(t, err)
	s, err := again.Settings()
	require.NoError(t, err)
	assert.Equal(t, 9, s.Sending.StartingNo)
}

func TestSectionDecoder(t *testing.T) {
	sf := loadSample(t, sampleINI)
	var data struct {
		Filename string `ini:"filename"`
		Size     int    `ini:"size"`
	}
	require.NoError(t, sf.Section("Data")(&data))
	assert.Equal(t, "scores.xlsx", data.Filename)
	assert.Equal(t, 4, data.Size)
	assert.True(t, sf.HasKey("Data", "SCORE_RANGE"))
	assert.False(t, sf.HasKey("Nope", "x"))
}

func TestAssembleScore(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.txt")
	raw := strings.Replace(sampleINI, "offlinedumpfile = dump.txt", "offlinedumpfile = "+dump, 1)
	raw = strings.Replace(raw, "[Sending]\n", "[Sending]\nmax_per_minute = 30\n", 1)
	sf := loadSample(t, raw)
	sf.Path = filepath.Join(dir, "mailsend.ini")
	s, err := sf.Settings()
	require.NoError(t, err)

	comp, set, err := AssembleScore(sf, s, contract.Credentials{Username: "box"})
	require.NoError(t, err)
	assert.NotNil(t, comp.Source)
	assert.NotNil(t, comp.Builder)
	assert.NotNil(t, comp.Mailer)
	assert.NotNil(t, comp.Store)
	assert.NotNil(t, comp.Gate)
	assert.Equal(t, 3, set.Filter.StartingNo)
	assert.Equal(t, "@stu", set.Filter.AddrFilter)
	assert.Equal(t, 2, set.Filter.Trials)
	assert.Equal(t, int64(500), set.Wait.Milliseconds())
	assert.True(t, set.Resume)
	assert.False(t, PasswordRequired(s))
	_, err = os.Stat(dump)
	assert.NoError(t, err, "离线后端应在装配时截断转储文件")

	msg, err := comp.Builder.Build(t.Context(), contract.Record{No: 1, StudentID: "S1", Score: 90, Rank: 1, Name: "张三", Address: "a@stu"})
	require.NoError(t, err)
	assert.Equal(t, "成绩-S1", msg.Subject)
	assert.Equal(t, "box@example.com", msg.FromAddr)
}

func TestAssembleScoreUnknownBackend(t *testing.T) {
	sf := loadSample(t, sampleINI)
	s, err := sf.Settings()
	require.NoError(t, err)
	s.Server.Backend = "nope"
	_, _, err = AssembleScore(sf, s, contract.Credentials{Username: "box"})
	assert.ErrorIs(t, err, contract.ErrConfig)
}

func TestBeamerYAML(t *testing.T) {
	cfg, err := LoadBeamerYAML("", []byte("input: a.tex\nkeep_plain: false\ncapture_names: [thm, lemma]\nwriter:\n  backup: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "a.tex", cfg.Input)
	require.NotNil(t, cfg.KeepPlain)
	assert.False(t, *cfg.KeepPlain)
	assert.Equal(t, []string{"thm", "lemma"}, cfg.CaptureNames)
	assert.True(t, cfg.Writer.Backup)

	_, err = LoadBeamerYAML("", []byte("inptu: a.tex\n"))
	assert.ErrorIs(t, err, contract.ErrConfig, "未知字段应失败")
}

func TestBeamerMergeAndEnv(t *testing.T) {
	over, err := BeamerEnvOverlay([]string{
		"BEAMER_INPUT=notes.tex",
		"BEAMER_CAPTURE_NAMES= thm , ,lemma",
		"BEAMER_KEEP_PLAIN=false",
		"BEAMER_MAX_DEPTH=4",
		"BEAMER_LOG_LEVEL=debug",
		"PATH=/bin",
	})
	require.NoError(t, err)
	cfg := MergeBeamer(BeamerDefaults(), over)
	assert.Equal(t, "notes.tex", cfg.Input)
	assert.Equal(t, "main-beamer.tex", cfg.Output)
	assert.Equal(t, []string{"thm", "lemma"}, cfg.CaptureNames)
	assert.False(t, *cfg.KeepPlain)
	assert.Equal(t, 4, cfg.MaxDepth)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, ValidateBeamer(cfg))

	_, err = BeamerEnvOverlay([]string{"BEAMER_MAX_DEPTH=deep"})
	assert.ErrorIs(t, err, contract.ErrConfig)
}

func TestValidateBeamer(t *testing.T) {
	cfg := BeamerDefaults()
	require.NoError(t, ValidateBeamer(cfg))

	same := cfg
	same.Output = "./main.tex"
	assert.ErrorIs(t, ValidateBeamer(same), contract.ErrConfig)

	ext := cfg
	ext.DefaultExt = "tex"
	assert.ErrorIs(t, ValidateBeamer(ext), contract.ErrConfig)

	lvl := cfg
	lvl.Logging.Level = "loud"
	assert.ErrorIs(t, ValidateBeamer(lvl), contract.ErrConfig)
}

// TestBeamerWriterRoot writer 选项经 YAML 生效：输出落在 root 下。
func TestBeamerWriterRoot(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "main.tex")
	require.NoError(t, os.WriteFile(in, []byte("\\begin{thm}[T]\nx\n\\end{thm}\n"), 0o644))
	root := filepath.Join(dir, "slides")
	y := "input: " + in + "\noutput: sub/out.tex\nwriter:\n  root: " + root + "\n  perm_file: 0o600\n  buf_size: 16\n"
	over, err := LoadBeamerYAML("", []byte(y))
	require.NoError(t, err)
	cfg := MergeBeamer(BeamerDefaults(), over)
	assert.Equal(t, root, cfg.Writer.Root)
	assert.Equal(t, os.FileMode(0o600), cfg.Writer.PermFile)
	assert.Equal(t, 16, cfg.Writer.BufSize)
	require.NoError(t, ValidateBeamer(cfg))

	comp, set, err := AssembleBeamer(cfg)
	require.NoError(t, err)
	_, err = pipeline.Convert(context.Background(), comp, set, nil)
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(root, "sub", "out.tex"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "\\frametitle{T}")

	abs := cfg
	abs.Output = filepath.Join(dir, "abs.tex")
	assert.ErrorIs(t, ValidateBeamer(abs), contract.ErrConfig)
}

func TestAssembleBeamer(t *testing.T) {
	comp, set, err := AssembleBeamer(BeamerDefaults())
	require.NoError(t, err)
	assert.Equal(t, "main.tex", set.Input)
	assert.NotNil(t, comp.Open)
	assert.NotNil(t, comp.Segment)
	assert.NotNil(t, comp.Emitter)
	assert.NotNil(t, comp.Writer)

	bad := BeamerDefaults()
	bad.CaptureNames = []string{""}
	_, _, err = AssembleBeamer(bad)
	assert.ErrorIs(t, err, contract.ErrConfig)
}

// TestWriteTemplates 模板可被加载与校验；已存在的文件不覆盖。
func TestWriteTemplates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "init")
	written, err := WriteTemplates(dir)
	require.NoError(t, err)
	assert.Len(t, written, 3)

	by, err := LoadBeamerYAML(filepath.Join(dir, BeamerYAMLFile), nil)
	require.NoError(t, err)
	require.NoError(t, ValidateBeamer(MergeBeamer(BeamerDefaults(), by)))

	sf, err := LoadScoreINI(filepath.Join(dir, ScoreINIFile), nil)
	require.NoError(t, err)
	s, err := sf.Settings()
	require.NoError(t, err)
	require.NoError(t, ValidateScore(sf, s))
	assert.Contains(t, s.Mail.Contents, "{ranking}")

	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("KEEP=1\n"), 0o600))
	again, err := WriteTemplates(dir)
	require.NoError(t, err)
	assert.Empty(t, again)
	b, err := os.ReadFile(filepath.Join(dir, DotEnvFile))
	require.NoError(t, err)
	assert.Equal(t, "KEEP=1\n", string(b))
}

func TestDotEnvAndCredentials(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	t.Setenv(EnvMailbox, "")
	t.Setenv(EnvPasswd, "")
	require.NoError(t, os.Unsetenv(EnvMailbox))
	require.NoError(t, os.Setenv(EnvPasswd, "preset"))
	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte(EnvMailbox+"=box\n"+EnvPasswd+"=fromfile\n"), 0o600))
	require.NoError(t, LoadDotEnv(p))

	c, err := Credentials(nil, true)
	require.NoError(t, err)
	assert.Equal(t, "box", c.Username)
	assert.Equal(t, "preset", c.Password, "已存在的环境变量不被 .env 覆盖")

	env := map[string]string{EnvMailbox: "box"}
	_, err = Credentials(func(k string) string { return env[k] }, true)
	assert.ErrorIs(t, err, contract.ErrConfig)
	_, err = Credentials(func(k string) string { return env[k] }, false)
	assert.NoError(t, err)
	_, err = Credentials(func(string) string { return "" }, false)
	assert.ErrorIs(t, err, contract.ErrConfig)
}
