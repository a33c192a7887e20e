package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 描述一次带缓存的请求：方法、URL 与过期策略。
func RequestFields(method, url, policy string) logrus.Fields {
	if method == "" {
		method = "GET"
	}
	return logrus.Fields{
		"method": method,
		"url":    url,
		"policy": policy,
	}
}

// StoreFields 标识被操作的 Store 与条目 key，key 为空时省略。
func StoreFields(behavior, key string) logrus.Fields {
	fields := logrus.Fields{"store": behavior}
	if key != "" {
		fields["key"] = key
	}
	return fields
}
