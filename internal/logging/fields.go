package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ExchangeFields 描述宿主流水线处理的单个交换。
func ExchangeFields(exchangeID uint32, requestID, method, path string) logrus.Fields {
	return logrus.Fields{
		"exchange_id": exchangeID,
		"request_id":  requestID,
		"method":      method,
		"path":        path,
	}
}

// ReloadFields 用于插件配置热加载的日志。
func ReloadFields(path string, nodes int) logrus.Fields {
	return logrus.Fields{
		"action": "plugin_reload",
		"path":   path,
		"nodes":  nodes,
	}
}
