package service

import (
	"errors"
)

var (
	ErrPlanningNotFound = errors.New("planning not found")
	ErrPlanningConflict = errors.New("planning was modified concurrently, please retry")
	ErrEmployeeNotFound = errors.New("employee not found")
)

// ValidationError 表示输入缺少必填字段或格式错误，在开启事务之前返回
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid input data: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransactionError 表示写入过程中存储层出错，所有写入都已被撤销
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return "transaction aborted: " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
