package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Driver 描述一种 VersionedStore 实现，供配置校验与诊断端使用。
type Driver struct {
	Name        string
	Description string
	// Persistent 表示数据是否在进程重启后保留。
	Persistent bool
	Open       func(path string) (VersionedStore, error)
}

const defaultDriverName = "fs"

var globalDrivers = newDriverRegistry()

type driverRegistry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func newDriverRegistry() *driverRegistry {
	return &driverRegistry{drivers: make(map[string]Driver)}
}

// DefaultDriverName 返回未配置 StoreDriver 时使用的驱动名。
func DefaultDriverName() string {
	return defaultDriverName
}

// RegisterDriver 将驱动加入全局注册表，重复名称会返回错误。
func RegisterDriver(driver Driver) error {
	return globalDrivers.register(driver)
}

// MustRegisterDriver 在注册失败时 panic，适合驱动包 init() 中调用。
func MustRegisterDriver(driver Driver) {
	if err := RegisterDriver(driver); err != nil {
		panic(err)
	}
}

// ResolveDriver 返回指定名称的驱动。
func ResolveDriver(name string) (Driver, bool) {
	return globalDrivers.resolve(name)
}

// Drivers 返回按名称排序的驱动列表。
func Drivers() []Driver {
	return globalDrivers.list()
}

// OpenDriver 按名称打开驱动，path 为驱动自身理解的存储位置。
func OpenDriver(name, path string) (VersionedStore, error) {
	driver, ok := ResolveDriver(name)
	if !ok {
		return nil, fmt.Errorf("cache driver %s is not registered", name)
	}
	return driver.Open(path)
}

func normalizeDriverName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *driverRegistry) register(driver Driver) error {
	name := normalizeDriverName(driver.Name)
	if name == "" {
		return fmt.Errorf("driver name is required")
	}
	if driver.Open == nil {
		return fmt.Errorf("driver %s: open func is required", name)
	}
	driver.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[name]; exists {
		return fmt.Errorf("driver %s already registered", name)
	}
	r.drivers[name] = driver
	return nil
}

func (r *driverRegistry) resolve(name string) (Driver, bool) {
	normalized := normalizeDriverName(name)
	if normalized == "" {
		return Driver{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	driver, ok := r.drivers[normalized]
	return driver, ok
}

func (r *driverRegistry) list() []Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.drivers) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Driver, 0, len(names))
	for _, name := range names {
		result = append(result, r.drivers[name])
	}
	return result
}
