package diary

import "sync"

// lockRegistry выдаёт мьютекс по ключу диалога. Генерация и счётчики
// триггера одного диалога сериализуются на одном мьютексе, разные
// диалоги работают параллельно.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) forKey(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}
