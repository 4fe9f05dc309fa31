package registry

import (
	"fmt"

	"beamerscore/pkg/contract"
	mflaky "beamerscore/plugins/mailer/flaky"
	moff "beamerscore/plugins/mailer/offline"
	msmtp "beamerscore/plugins/mailer/smtp"
	rxlsx "beamerscore/plugins/records/xlsx"
	wfs "beamerscore/plugins/writer/filesystem"
)

// Decoder 将组件原样选项解码进 v（例如 INI 分区的 MapTo）。
// nil 表示无选项，保持零值（默认选项）。
type Decoder func(v any) error

func decode(dec Decoder, v any) error {
	if dec == nil {
		return nil
	}
	return dec(v)
}

// Value 返回一个将已有的类型化选项原样拷入目标的 Decoder。
func Value[T any](val T) Decoder {
	return func(v any) error {
		p, ok := v.(*T)
		if !ok {
			return fmt.Errorf("%w: options type %T, want *%T", contract.ErrConfig, v, val)
		}
		*p = val
		return nil
	}
}

// NewMailer 工厂签名。
type NewMailer func(dec Decoder) (contract.Mailer, error)

// NewRecordSource 工厂签名。
type NewRecordSource func(dec Decoder) (contract.RecordSource, error)

// NewWriter 工厂签名。
type NewWriter func(dec Decoder) (contract.Writer, error)

// Mailer 发送后端注册表（显式、零反射）。
var Mailer = map[string]NewMailer{
	// smtp: go-mail 客户端，隐式 TLS
	"smtp": func(dec Decoder) (contract.Mailer, error) {
		var opts msmtp.Options
		if err := decode(dec, &opts); err != nil {
			return nil, err
		}
		return msmtp.New(opts)
	},
	// offline: 本地转储 + 概率性瞬时失败
	"offline": func(dec Decoder) (contract.Mailer, error) {
		var opts moff.Options
		if err := decode(dec, &opts); err != nil {
			return nil, err
		}
		return moff.New(opts)
	},
	// flaky: 脚本化失败，用于诊断重试链路
	"flaky": func(dec Decoder) (contract.Mailer, error) {
		var opts mflaky.Options
		if err := decode(dec, &opts); err != nil {
			return nil, err
		}
		return mflaky.New(opts)
	},
}

// RecordSource 成绩输入源注册表。
var RecordSource = map[string]NewRecordSource{
	"xlsx": func(dec Decoder) (contract.RecordSource, error) {
		var opts rxlsx.Options
		if err := decode(dec, &opts); err != nil {
			return nil, err
		}
		return rxlsx.New(opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(dec Decoder) (contract.Writer, error) {
		var opts wfs.Options
		if err := decode(dec, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts), nil
	},
}
