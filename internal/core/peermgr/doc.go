// Package peermgr 节点可达性管理
//
// Manager 跟踪连接失败的节点：按指数退避暂时拉黑，到期后重连；
// 退避超过上限的节点视为永久失效并从注册表移除。
//
// AutoDialer 在连接数低于下限时自动拨号新发现的节点，
// 连接断开后从已知节点中挑选若干个尝试补足。
package peermgr
