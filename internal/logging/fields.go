package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// WorkerFields 标记生命周期事件所属的 worker 版本。
func WorkerFields(action, version string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"version": version,
	}
}

// RequestFields 提供拦截请求的方法、地址、模式与响应来源，供 fetch 日志复用。
func RequestFields(method, url, mode, destination, source string) logrus.Fields {
	return logrus.Fields{
		"method":      method,
		"url":         url,
		"mode":        mode,
		"destination": destination,
		"source":      source,
	}
}
