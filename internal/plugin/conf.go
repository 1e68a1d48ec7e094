package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidPayload 覆盖所有插件配置解析失败的情况。
var ErrInvalidPayload = errors.New("invalid plugin configuration")

// Conf 是宿主推送的插件配置；RedisNodes 为 nil 表示未配置任何后端节点。
type Conf struct {
	RedisNodes []string `json:"redis_nodes" mapstructure:"redis_nodes"`
}

// Clone 返回不共享底层切片的副本。
func (c Conf) Clone() Conf {
	if c.RedisNodes == nil {
		return Conf{}
	}
	nodes := make([]string, len(c.RedisNodes))
	copy(nodes, c.RedisNodes)
	return Conf{RedisNodes: nodes}
}

func (c Conf) String() string {
	if c.RedisNodes == nil {
		return "{redis_nodes:none}"
	}
	return fmt.Sprintf("{redis_nodes:[%s]}", strings.Join(c.RedisNodes, " "))
}

// Encode 输出与推送格式一致的 JSON。
func (c Conf) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// ParseConf 解析 JSON 对象形式的配置。未知字段忽略；非对象或字段类型错误直接失败。
func ParseConf(payload []byte) (Conf, error) {
	var raw interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Conf{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	object, ok := raw.(map[string]interface{})
	if !ok {
		return Conf{}, fmt.Errorf("%w: expected a JSON object, got %T", ErrInvalidPayload, raw)
	}

	var conf Conf
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &conf,
		TagName:          "mapstructure",
		WeaklyTypedInput: false,
		ErrorUnused:      false,
	})
	if err != nil {
		return Conf{}, err
	}
	if err := decoder.Decode(object); err != nil {
		return Conf{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := conf.Validate(); err != nil {
		return Conf{}, err
	}
	return conf, nil
}

// Validate 要求每个节点都是 host:port 形式。
func (c Conf) Validate() error {
	for idx, node := range c.RedisNodes {
		host, port, err := net.SplitHostPort(strings.TrimSpace(node))
		if err != nil || host == "" || port == "" {
			return fmt.Errorf("%w: redis_nodes[%d] %q is not host:port", ErrInvalidPayload, idx, node)
		}
	}
	return nil
}
