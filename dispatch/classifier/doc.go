// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package classifier provides dispatch.Classifier implementations.

# 实现

  - KeywordClassifier: 关键词计分，无外部依赖，适合测试与离线部署
  - OpenAIClassifier: 通过 Chat Completions 结构化输出（JSON Schema enum）分类
  - CachingClassifier: 装饰器，按 (维度, 文本) 缓存已校验的标签，支持内存与 Redis 存储

OpenAIClassifier 在发送前用 Truncator 将输入截断到 token 上限。
所有实现只返回原始标签，合法性校验由 dispatch.DimensionClassifier 负责。
*/
package classifier
