package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/gocrash/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(prefix, id, tag string) Store
}

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
	Delete() error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// JSONFileService 基于 JSON 文件的持久化服务
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

// BaseDir 数据目录
func (s *JSONFileService) BaseDir() string { return s.baseDir }

// NewStore 创建新的存储
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &JSONFileStore{
		service: s,
		key:     fmt.Sprintf("%s:%s:%s", prefix, id, tag),
	}
}

// JSONFileStore JSON 文件存储实现（tmp + rename）
type JSONFileStore struct {
	service *JSONFileService
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *JSONFileStore) filePath() string {
	safe := keySanitizer.ReplaceAllString(s.key, "_")
	return filepath.Join(s.service.baseDir, safe+".json")
}

// Save 保存数据
func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: key=%s", s.key)
	if err := os.MkdirAll(s.service.baseDir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir state dir")
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal %s", s.key)
	}
	path := s.filePath()
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", tmp)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	return os.Rename(tmp, path)
}

// Load 加载数据
func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: key=%s", s.key)
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return errors.Wrapf(json.Unmarshal(b, data), "unmarshal %s", s.key)
}

// Delete 删除数据（不存在时忽略）
func (s *JSONFileStore) Delete() error {
	err := os.Remove(s.filePath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Manifest 一组状态文件的提交记录。
// 只有 manifest 指向的代号才是一致的状态。
type Manifest struct {
	Seq         uint64    `json:"seq"`
	Tags        []string  `json:"tags"`
	CommittedAt time.Time `json:"committed_at"`
}

const manifestTag = "commit"

func generationTag(tag string, seq uint64) string {
	return fmt.Sprintf("%s.g%06d", tag, seq)
}

// LoadManifest 读取当前提交记录
func LoadManifest(id string, service Service) (Manifest, error) {
	var m Manifest
	if err := service.NewStore("state", id, manifestTag).Load(&m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// SaveFields 保存带 persistence tag 的字段，每个 tag 一个文件。
// 先写新代号的全部文件，再原子替换 manifest，最后清理旧代号。
func SaveFields(obj interface{}, id string, service Service) (uint64, error) {
	prev, err := LoadManifest(id, service)
	if err != nil && err != ErrNotExists {
		return 0, err
	}
	seq := prev.Seq + 1

	var tags []string
	err = iterateFieldsByTag(obj, "persistence", true, func(
		tag string, ft reflect.StructField, fv reflect.Value,
	) error {
		logger.Debugf("[SaveFields] storing field %s, tag=%s seq=%d", ft.Name, tag, seq)
		tags = append(tags, tag)
		return service.NewStore("state", id, generationTag(tag, seq)).Save(fv.Interface())
	})
	if err != nil {
		return 0, err
	}

	m := Manifest{Seq: seq, Tags: tags, CommittedAt: time.Now()}
	if err := service.NewStore("state", id, manifestTag).Save(m); err != nil {
		return 0, errors.Wrap(err, "commit manifest")
	}

	if prev.Seq > 0 {
		for _, tag := range prev.Tags {
			if err := service.NewStore("state", id, generationTag(tag, prev.Seq)).Delete(); err != nil {
				logger.Warnf("[SaveFields] 清理旧状态失败: tag=%s seq=%d err=%v", tag, prev.Seq, err)
			}
		}
	}
	return seq, nil
}

// LoadFields 按 manifest 加载带 persistence tag 的字段。
// 没有 manifest 时返回 ErrNotExists，字段保持原值。
func LoadFields(obj interface{}, id string, service Service) (uint64, error) {
	m, err := LoadManifest(id, service)
	if err != nil {
		return 0, err
	}
	err = iterateFieldsByTag(obj, "persistence", true, func(
		tag string, field reflect.StructField, value reflect.Value,
	) error {
		newValueInf := newTypeValueInterface(value.Type())
		store := service.NewStore("state", id, generationTag(tag, m.Seq))
		if err := store.Load(newValueInf); err != nil {
			if err == ErrNotExists {
				return errors.Errorf("state %s missing for committed seq %d", tag, m.Seq)
			}
			return err
		}
		newValue := reflect.ValueOf(newValueInf)
		if value.Kind() != reflect.Ptr && newValue.Kind() == reflect.Ptr {
			newValue = newValue.Elem()
		}
		logger.Debugf("[LoadFields] %s loaded (seq=%d)", field.Name, m.Seq)
		value.Set(newValue)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return m.Seq, nil
}

// iterateFieldsByTag 遍历结构体字段，查找指定 tag
func iterateFieldsByTag(obj interface{}, tagName string, includeNested bool, fn func(tag string, field reflect.StructField, value reflect.Value) error) error {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("object must be a struct or pointer to struct")
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		if !value.CanSet() {
			continue
		}

		tag := field.Tag.Get(tagName)
		if tag == "" || tag == "-" {
			if includeNested && value.Kind() == reflect.Struct {
				if err := iterateFieldsByTag(value.Addr().Interface(), tagName, includeNested, fn); err != nil {
					return err
				}
			}
			continue
		}

		tagValue := strings.Split(tag, ",")[0]
		if err := fn(tagValue, field, value); err != nil {
			return err
		}
	}
	return nil
}

func newTypeValueInterface(typ reflect.Type) interface{} {
	if typ.Kind() == reflect.Ptr {
		return reflect.New(typ.Elem()).Interface()
	}
	return reflect.New(typ).Interface()
}
