package vulkan

import "sync"

type LockGroup string

const (
	ResourceManagement    LockGroup = "resource_management"
	DescriptorManagement  LockGroup = "descriptor_management"
	PipelineManagement    LockGroup = "pipeline_management"
	CommandPoolManagement LockGroup = "command_pool_management"
	SwapchainManagement   LockGroup = "swapchain_management"
)

// VulkanLockPool hands out one mutex per group of Vulkan objects that must be
// externally synchronized, and one per queue family.
type VulkanLockPool struct {
	mu           sync.Mutex
	locks        map[LockGroup]*sync.Mutex
	queueMutexes map[uint32]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) groupLock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

func (vs *VulkanLockPool) queueLock(family uint32) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	l, ok := vs.queueMutexes[family]
	if !ok {
		l = &sync.Mutex{}
		vs.queueMutexes[family] = l
	}
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.groupLock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// SafeQueueCall runs fn while holding the queue of the family. Queue submits
// and presents go through here.
func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	l := vs.queueLock(queueFamilyIndex)
	l.Lock()
	defer l.Unlock()
	return fn()
}
