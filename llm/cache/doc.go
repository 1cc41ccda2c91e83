// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供 provider 响应的多级缓存实现（spec §4.D），通过本地 LRU
与 Redis 协同，在模型路由重试同一 (provider, request) 前先命中缓存。

# 概述

ModelCacheAdapter 把本包的 MultiLevelCache（本地 LRU + Redis）适配成
llm.ModelCache 这个路由热路径消费的窄接口：键不是由本包生成，而是
llm.Fingerprint 在调用前就把 provider 类型、wire 模型名、
完整序列化后的 ModelInferenceRequest 与 extra_cache_key 折叠成的一个
字符串，直接传给 Get/Set。

# 核心接口

  - PromptCache：缓存接口，定义 Get/Set/Delete/GenerateKey 操作。
  - MultiLevelCache：多级缓存实现，本地 LRU 作为 L1、Redis 作为 L2。
  - ModelCacheAdapter：把 MultiLevelCache 适配为 llm.ModelCache。

# 主要能力

  - 多级缓存：L1 本地 LRU（O(1) 操作）+ L2 Redis，自动回填。
  - max_age_s 新鲜度：ModelCacheAdapter.Lookup 在读取时按时间戳过滤过期条目。
  - 可缓存判断：默认跳过含 Tools 的请求，避免缓存有副作用的调用。
  - 版本失效：InvalidateByVersion 清空全部本地 LRU 条目（不按版本筛选），
    Redis 中的条目不会被删除。

# 使用方式

	cfg := cache.DefaultCacheConfig()
	mlc := cache.NewMultiLevelCache(redisClient, cfg, logger)
	adapter := cache.NewModelCacheAdapter(mlc, logger)
	router := llm.NewRouter(adapters, adapter, logger, collector)
*/
package cache
